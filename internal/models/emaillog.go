package models

import "time"

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailLog records one share-email attempt. Logs are append-only: they are
// created pending, resolved to sent or failed once, and never exposed for
// update or delete through the API.
type EmailLog struct {
	ID             string      `bson:"_id" json:"id"`
	UserID         string      `bson:"user_id" json:"user_id"`
	RecipientEmail string      `bson:"recipient_email" json:"recipient_email" validate:"required,email"`
	Subject        string      `bson:"subject" json:"subject"`
	CDID           string      `bson:"cd_id" json:"cd_id"`
	CDName         string      `bson:"cd_name" json:"cd_name"`
	Status         EmailStatus `bson:"status" json:"status"`
	Error          string      `bson:"error,omitempty" json:"error,omitempty"`
	SentAt         time.Time   `bson:"sent_at" json:"sent_at"`
}
