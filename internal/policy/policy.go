package policy

import (
	"time"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/quota"
)

// tokenGrants reports whether a presented share token grants read access
// to the given CD at the server-observed time. A nil token grants
// nothing; expiry is a hard boundary.
func tokenGrants(tok *models.ShareToken, cdID string, now time.Time) bool {
	return tok != nil && tok.CDID == cdID && tok.Valid(now)
}

// canReadCD is the shared read predicate for a CD and everything under
// it: owner, valid share token for this CD, or public marketplace flag.
// A soft-deleted CD is invisible to everyone, its owner included.
func canReadCD(p identity.Principal, cd *models.CD, tok *models.ShareToken, now time.Time) bool {
	if cd == nil || cd.DeletedAt != nil {
		return false
	}
	return p.IsOwner(cd.UserID) || tokenGrants(tok, cd.ID, now) || cd.IsPublic
}

// EvaluateCD gates document operations on a CD. existing is the stored
// snapshot (nil on create); incoming is the proposed document (nil on
// read/delete); tok is the share token presented with the request, if
// any.
func EvaluateCD(op Operation, p identity.Principal, existing, incoming *models.CD, tok *models.ShareToken, now time.Time) Decision {
	switch op {
	case OpCreate:
		if incoming == nil || !p.IsOwner(incoming.UserID) {
			return Deny(ErrUnauthorized)
		}
		// A new CD starts with an empty ledger and the fixed limit.
		if incoming.StorageUsedBytes != 0 || incoming.FileCount != 0 || incoming.ViewCount != 0 ||
			incoming.StorageLimitBytes != models.StorageLimitBytes || incoming.DeletedAt != nil {
			return Deny(ErrConsistencyFault)
		}
		return Allow()

	case OpRead:
		if !canReadCD(p, existing, tok, now) {
			return Deny(ErrUnauthorized)
		}
		return Allow()

	case OpUpdate:
		if existing == nil || incoming == nil || existing.DeletedAt != nil {
			return Deny(ErrUnauthorized)
		}
		if p.IsOwner(existing.UserID) {
			return evaluateOwnerCDUpdate(existing, incoming)
		}
		// The only non-owner mutation is a +1 view bump on a public CD.
		if existing.IsPublic && isViewBump(existing, incoming) {
			return Allow()
		}
		return Deny(ErrUnauthorized)

	case OpDelete:
		if existing == nil || !p.IsOwner(existing.UserID) {
			return Deny(ErrUnauthorized)
		}
		return Allow()
	}
	return Deny(ErrUnauthorized)
}

func evaluateOwnerCDUpdate(existing, incoming *models.CD) Decision {
	// Identity and ledger fields never move through a document update:
	// the ledger only moves via the quota ledger's atomic adjustments,
	// and the view counter only via the marketplace bump.
	if incoming.ID != existing.ID || incoming.UserID != existing.UserID ||
		incoming.StorageLimitBytes != existing.StorageLimitBytes ||
		!incoming.CreatedAt.Equal(existing.CreatedAt) {
		return Deny(ErrConsistencyFault)
	}
	if incoming.StorageUsedBytes != existing.StorageUsedBytes ||
		incoming.FileCount != existing.FileCount ||
		incoming.ViewCount != existing.ViewCount {
		return Deny(ErrConsistencyFault)
	}
	// Public listing requires the publication timestamp.
	if incoming.IsPublic && incoming.PublicAt == nil {
		return Deny(ErrConsistencyFault)
	}
	return Allow()
}

// isViewBump reports whether incoming is existing with exactly one more
// view and nothing else changed.
func isViewBump(existing, incoming *models.CD) bool {
	return incoming.ViewCount == existing.ViewCount+1 &&
		incoming.ID == existing.ID &&
		incoming.UserID == existing.UserID &&
		incoming.Name == existing.Name &&
		incoming.Label == existing.Label &&
		incoming.StorageUsedBytes == existing.StorageUsedBytes &&
		incoming.StorageLimitBytes == existing.StorageLimitBytes &&
		incoming.FileCount == existing.FileCount &&
		incoming.IsPublic == existing.IsPublic &&
		timePtrEqual(incoming.PublicAt, existing.PublicAt) &&
		incoming.CreatedAt.Equal(existing.CreatedAt) &&
		incoming.DeletedAt == nil && existing.DeletedAt == nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// EvaluateFile gates document operations on a file. cd is the parent CD
// snapshot; incoming is the proposed file document on create.
func EvaluateFile(op Operation, p identity.Principal, cd *models.CD, incoming *models.File, tok *models.ShareToken, now time.Time) Decision {
	switch op {
	case OpCreate:
		if cd == nil || cd.DeletedAt != nil || !p.IsOwner(cd.UserID) || incoming == nil {
			return Deny(ErrUnauthorized)
		}
		if incoming.CDID != cd.ID {
			return Deny(ErrConsistencyFault)
		}
		// The storage path must agree with the owner, CD and file it
		// claims to describe.
		ref, err := ParseBlobPath(incoming.StoragePath)
		if err != nil || ref.Kind != BlobFile ||
			ref.OwnerUID != cd.UserID || ref.CDID != cd.ID || ref.FileID != incoming.ID {
			return Deny(ErrConsistencyFault)
		}
		if err := quota.CanAdmit(cd, incoming.SizeBytes, incoming.MimeType); err != nil {
			return Deny(err)
		}
		if ft, _ := quota.FileTypeFor(incoming.MimeType); ft != incoming.FileType {
			return Deny(ErrConsistencyFault)
		}
		return Allow()

	case OpRead:
		if !canReadCD(p, cd, tok, now) {
			return Deny(ErrUnauthorized)
		}
		return Allow()

	case OpDelete:
		if cd == nil || !p.IsOwner(cd.UserID) {
			return Deny(ErrUnauthorized)
		}
		return Allow()
	}
	// Files are immutable once written; there is no update path.
	return Deny(ErrUnauthorized)
}

// EvaluateBlobWrite gates writes to the blob store. The path must sit
// inside the writer's own prefix for this CD, and the object must pass
// the same type and size admission as its metadata.
func EvaluateBlobWrite(p identity.Principal, cd *models.CD, path, contentType string, sizeBytes int64) Decision {
	if cd == nil || cd.DeletedAt != nil || !p.IsOwner(cd.UserID) {
		return Deny(ErrUnauthorized)
	}
	ref, err := ParseBlobPath(path)
	if err != nil {
		return Deny(ErrUnauthorized)
	}
	if ref.OwnerUID != cd.UserID || ref.CDID != cd.ID || !p.IsOwner(ref.OwnerUID) {
		return Deny(ErrUnauthorized)
	}
	if ref.Kind == BlobThumbnail {
		// Thumbnails must be images but do not consume CD quota.
		if ft, ok := quota.FileTypeFor(contentType); !ok || ft != models.FileTypeImage {
			return Deny(quota.ErrDisallowedType)
		}
		if sizeBytes <= 0 || sizeBytes > quota.MaxFileBytes {
			return Deny(&quota.QuotaError{Ceiling: quota.CeilingFile, SizeBytes: sizeBytes, LimitBytes: quota.MaxFileBytes})
		}
		return Allow()
	}
	if err := quota.CanAdmit(cd, sizeBytes, contentType); err != nil {
		return Deny(err)
	}
	return Allow()
}

// EvaluateBlobRead gates reads from the blob store; access follows the
// parent CD.
func EvaluateBlobRead(p identity.Principal, cd *models.CD, tok *models.ShareToken, now time.Time) Decision {
	if !canReadCD(p, cd, tok, now) {
		return Deny(ErrUnauthorized)
	}
	return Allow()
}

// EvaluateShareToken gates operations on share-token documents. cd is
// the referenced CD (needed on create); existing/incoming as for
// EvaluateCD. Reading a token document is unauthenticated by design:
// the token value is the secret, not the document.
func EvaluateShareToken(op Operation, p identity.Principal, cd *models.CD, existing, incoming *models.ShareToken, now time.Time) Decision {
	switch op {
	case OpCreate:
		if cd == nil || cd.DeletedAt != nil || !p.IsOwner(cd.UserID) || incoming == nil {
			return Deny(ErrUnauthorized)
		}
		if incoming.CreatedBy != p.UID || incoming.CDID != cd.ID ||
			incoming.AccessCount != 0 ||
			!incoming.ExpiresAt.Equal(incoming.CreatedAt.Add(models.ShareTokenTTL)) {
			return Deny(ErrConsistencyFault)
		}
		return Allow()

	case OpRead:
		return Allow()

	case OpUpdate:
		if existing == nil || incoming == nil {
			return Deny(ErrUnauthorized)
		}
		// The sole admitted update is an access-count bump: +1 with
		// every other field untouched. The creator may always bump;
		// any other principal may bump only while the token is valid
		// (they are, after all, proving they hold it).
		if !isAccessBump(existing, incoming) {
			if p.IsOwner(existing.CreatedBy) {
				return Deny(ErrConsistencyFault)
			}
			return Deny(ErrUnauthorized)
		}
		if p.IsOwner(existing.CreatedBy) {
			return Allow()
		}
		if !existing.Valid(now) {
			return Deny(ErrTokenInvalid)
		}
		return Allow()

	case OpDelete:
		if existing == nil || !p.IsOwner(existing.CreatedBy) {
			return Deny(ErrUnauthorized)
		}
		return Allow()
	}
	return Deny(ErrUnauthorized)
}

func isAccessBump(existing, incoming *models.ShareToken) bool {
	return incoming.AccessCount == existing.AccessCount+1 &&
		incoming.Token == existing.Token &&
		incoming.CDID == existing.CDID &&
		incoming.CreatedBy == existing.CreatedBy &&
		incoming.CreatedAt.Equal(existing.CreatedAt) &&
		incoming.ExpiresAt.Equal(existing.ExpiresAt)
}

// EvaluateEmailLog gates email-log documents: create and read are
// owner-only, and there is no update or delete path at all.
func EvaluateEmailLog(op Operation, p identity.Principal, log *models.EmailLog) Decision {
	switch op {
	case OpCreate, OpRead:
		if log == nil || !p.IsOwner(log.UserID) {
			return Deny(ErrUnauthorized)
		}
		return Allow()
	}
	return Deny(ErrUnauthorized)
}

// EvaluateUser gates user documents: owner-only in both directions.
func EvaluateUser(op Operation, p identity.Principal, ownerUID string) Decision {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		if !p.IsOwner(ownerUID) {
			return Deny(ErrUnauthorized)
		}
		return Allow()
	}
	return Deny(ErrUnauthorized)
}
