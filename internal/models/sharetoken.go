package models

import "time"

// ShareTokenTTL is the fixed lifetime of a share token. Expiry is a hard
// boundary with no grace period.
const ShareTokenTTL = 30 * 24 * time.Hour

// ShareToken grants read access to one CD to anyone holding the token
// string. The document itself is world-readable; the token value is the
// secret, not the document path.
type ShareToken struct {
	Token       string    `bson:"_id" json:"token"`
	CDID        string    `bson:"cd_id" json:"cd_id"`
	CreatedBy   string    `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
	AccessCount int64     `bson:"access_count" json:"access_count"`
}

// Valid reports whether the token is usable at the given server time.
func (t ShareToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
