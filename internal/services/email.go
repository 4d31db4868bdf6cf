package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recdfyi/recd-server/internal/email"
	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/store"
)

type EmailService struct {
	cds    store.CDStore
	logs   store.EmailLogStore
	shares *ShareService
	relay  email.Relay
	// baseURL is the public origin share links are built on.
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

func NewEmailService(cds store.CDStore, logs store.EmailLogStore, shares *ShareService, relay email.Relay, baseURL string, logger *slog.Logger) *EmailService {
	return &EmailService{cds: cds, logs: logs, shares: shares, relay: relay, baseURL: baseURL, logger: logger, now: time.Now}
}

// SendShare mints a share token for the CD, emails the link, and
// records the attempt. The log is created pending before the relay is
// called and resolved to sent or failed afterwards; a relay failure is
// reported but never retried automatically.
func (s *EmailService) SendShare(ctx context.Context, p identity.Principal, cdID, recipient string) (models.EmailLog, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.EmailLog{}, policy.ErrUnauthorized
	}
	if !p.IsOwner(cd.UserID) {
		return models.EmailLog{}, policy.ErrUnauthorized
	}

	tok, err := s.shares.Issue(ctx, p, cdID)
	if err != nil {
		return models.EmailLog{}, err
	}

	log := models.EmailLog{
		ID:             uuid.NewString(),
		UserID:         p.UID,
		RecipientEmail: recipient,
		Subject:        fmt.Sprintf("A CD was shared with you: %s", cd.Name),
		CDID:           cd.ID,
		CDName:         cd.Name,
		Status:         models.EmailPending,
		SentAt:         s.now(),
	}
	if d := policy.EvaluateEmailLog(policy.OpCreate, p, &log); !d.Allowed {
		return models.EmailLog{}, d.Reason
	}
	if err := s.logs.CreateEmailLog(ctx, log); err != nil {
		return models.EmailLog{}, fmt.Errorf("create email log: %w", err)
	}

	sendErr := s.relay.Send(ctx, recipient, email.Params{
		CDName:    cd.Name,
		ShareURL:  fmt.Sprintf("%s/share/%s", s.baseURL, tok.Token),
		Subject:   log.Subject,
		SenderUID: p.UID,
	})
	if sendErr != nil {
		log.Status = models.EmailFailed
		log.Error = sendErr.Error()
	} else {
		log.Status = models.EmailSent
	}
	if err := s.logs.ResolveEmailLog(ctx, log.ID, log.Status, log.Error); err != nil {
		s.logger.Error("resolve email log", "log_id", log.ID, "error", err)
	}
	if sendErr != nil {
		return log, fmt.Errorf("email relay: %w", sendErr)
	}
	return log, nil
}

// Logs returns the principal's own email history.
func (s *EmailService) Logs(ctx context.Context, p identity.Principal) ([]models.EmailLog, error) {
	if !p.IsAuthenticated() {
		return nil, policy.ErrUnauthorized
	}
	return s.logs.EmailLogsByUser(ctx, p.UID)
}
