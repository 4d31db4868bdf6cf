// Package identity represents the authenticated principal of a request.
// Every policy predicate reduces to comparisons against it; nothing here
// has side effects or failure modes beyond returning false.
package identity

// Principal is the requester's identity. A zero Principal is an
// unauthenticated (anonymous) requester.
type Principal struct {
	UID string
}

// Anonymous is the principal of an unauthenticated request.
var Anonymous = Principal{}

func (p Principal) IsAuthenticated() bool {
	return p.UID != ""
}

// IsOwner reports whether the principal is the given resource owner.
// Anonymous principals never own anything.
func (p Principal) IsOwner(ownerUID string) bool {
	return p.IsAuthenticated() && p.UID == ownerUID
}
