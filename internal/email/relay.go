// Package email is the boundary to the transactional email relay. The
// relay itself is an external collaborator; this package only defines
// the contract and a stub used when no relay is configured.
package email

import (
	"context"
	"log/slog"
)

// Params is the template payload for a share email.
type Params struct {
	CDName    string
	ShareURL  string
	Subject   string
	SenderUID string
}

// Relay sends one email. Implementations must return an error on
// delivery failure; the caller records the outcome in the email log and
// never retries automatically.
type Relay interface {
	Send(ctx context.Context, recipient string, params Params) error
}

// LogRelay logs sends instead of delivering them. Wired when no real
// relay credentials are present, which keeps the rest of the email path
// exercisable in development.
type LogRelay struct {
	Logger *slog.Logger
}

func (r LogRelay) Send(_ context.Context, recipient string, params Params) error {
	r.Logger.Info("email relay stub: send",
		"recipient", recipient,
		"subject", params.Subject,
		"cd_name", params.CDName)
	return nil
}

var _ Relay = LogRelay{}
