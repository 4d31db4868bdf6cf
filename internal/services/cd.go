package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/storage"
	"github.com/recdfyi/recd-server/internal/store"
)

// sweepAttempts bounds the delete saga's retry loop per dependent
// collection.
const sweepAttempts = 3

type CDService struct {
	cds    store.CDStore
	files  store.FileStore
	tokens store.TokenStore
	blobs  storage.BlobStore
	logger *slog.Logger
	now    func() time.Time
}

func NewCDService(cds store.CDStore, files store.FileStore, tokens store.TokenStore, blobs storage.BlobStore, logger *slog.Logger) *CDService {
	return &CDService{cds: cds, files: files, tokens: tokens, blobs: blobs, logger: logger, now: time.Now}
}

// loadToken resolves an optionally presented share-token string to a
// document snapshot. Absent or unknown tokens resolve to nil; the
// policy engine treats nil as "grants nothing".
func loadToken(ctx context.Context, tokens store.TokenStore, token string) *models.ShareToken {
	if token == "" {
		return nil
	}
	t, err := tokens.TokenByID(ctx, token)
	if err != nil {
		return nil
	}
	return &t
}

// Create mints an empty CD with the fixed capacity for the principal.
func (s *CDService) Create(ctx context.Context, p identity.Principal, name, label string) (models.CD, error) {
	cd := models.CD{
		ID:                uuid.NewString(),
		UserID:            p.UID,
		Name:              name,
		Label:             label,
		StorageLimitBytes: models.StorageLimitBytes,
		CreatedAt:         s.now(),
	}
	if d := policy.EvaluateCD(policy.OpCreate, p, nil, &cd, nil, s.now()); !d.Allowed {
		return models.CD{}, d.Reason
	}
	if err := s.cds.CreateCD(ctx, cd); err != nil {
		return models.CD{}, err
	}
	return cd, nil
}

// Get returns one CD readable by the principal, optionally via a share
// token.
func (s *CDService) Get(ctx context.Context, p identity.Principal, cdID, token string) (models.CD, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		// Missing and denied are indistinguishable to the caller.
		return models.CD{}, policy.ErrUnauthorized
	}
	tok := loadToken(ctx, s.tokens, token)
	if d := policy.EvaluateCD(policy.OpRead, p, &cd, nil, tok, s.now()); !d.Allowed {
		return models.CD{}, d.Reason
	}
	return cd, nil
}

// List returns the principal's own CDs.
func (s *CDService) List(ctx context.Context, p identity.Principal) ([]models.CD, error) {
	if !p.IsAuthenticated() {
		return nil, policy.ErrUnauthorized
	}
	return s.cds.CDsByOwner(ctx, p.UID)
}

// Update edits name and label; ownership and immutable fields are
// enforced by the policy engine against the stored snapshot.
func (s *CDService) Update(ctx context.Context, p identity.Principal, cdID, name, label string) (models.CD, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.CD{}, policy.ErrUnauthorized
	}
	incoming := cd
	incoming.Name = name
	incoming.Label = label
	if d := policy.EvaluateCD(policy.OpUpdate, p, &cd, &incoming, nil, s.now()); !d.Allowed {
		return models.CD{}, d.Reason
	}
	if err := s.cds.UpdateCD(ctx, incoming); err != nil {
		return models.CD{}, err
	}
	return incoming, nil
}

// SetPublic publishes or unpublishes a CD on the marketplace.
func (s *CDService) SetPublic(ctx context.Context, p identity.Principal, cdID string, public bool) (models.CD, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.CD{}, policy.ErrUnauthorized
	}
	incoming := cd
	incoming.IsPublic = public
	if public {
		at := s.now()
		incoming.PublicAt = &at
	} else {
		incoming.PublicAt = nil
	}
	if d := policy.EvaluateCD(policy.OpUpdate, p, &cd, &incoming, nil, s.now()); !d.Allowed {
		return models.CD{}, d.Reason
	}
	if err := s.cds.UpdateCD(ctx, incoming); err != nil {
		return models.CD{}, err
	}
	return incoming, nil
}

// Delete runs the cascade saga: mark the CD deleted so every further
// read is denied, then sweep files, tokens and blobs with bounded
// retries. Residual sweep failures are logged, never silently dropped;
// the mark itself already guarantees no orphan is reachable.
func (s *CDService) Delete(ctx context.Context, p identity.Principal, cdID string) error {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return policy.ErrUnauthorized
	}
	if d := policy.EvaluateCD(policy.OpDelete, p, &cd, nil, nil, s.now()); !d.Allowed {
		return d.Reason
	}

	if err := s.cds.MarkDeleted(ctx, cdID, s.now()); err != nil {
		return fmt.Errorf("mark cd deleted: %w", err)
	}
	s.sweep(ctx, cd)
	return nil
}

// ResumeSweeps finishes cascade deletes that were interrupted before
// their sweep completed, whether by exhausted retries or a crash between
// the mark and the sweep. The deleted_at marker is the durable saga
// state: any marked CD still present has residue to clear. Run at
// startup.
func (s *CDService) ResumeSweeps(ctx context.Context) error {
	cds, err := s.cds.DeletedCDs(ctx)
	if err != nil {
		return fmt.Errorf("list deleted cds: %w", err)
	}
	for _, cd := range cds {
		s.logger.Info("resuming cd delete sweep", "cd_id", cd.ID)
		s.sweep(ctx, cd)
	}
	return nil
}

func (s *CDService) sweep(ctx context.Context, cd models.CD) {
	retry := func(name string, fn func() error) {
		var err error
		for attempt := 1; attempt <= sweepAttempts; attempt++ {
			if err = fn(); err == nil {
				return
			}
			s.logger.Warn("cd delete sweep retry",
				"cd_id", cd.ID, "step", name, "attempt", attempt, "error", err)
		}
		s.logger.Error("cd delete sweep incomplete",
			"cd_id", cd.ID, "step", name, "error", err)
	}

	retry("files", func() error {
		_, err := s.files.DeleteFilesByCD(ctx, cd.ID)
		return err
	})
	retry("tokens", func() error {
		_, err := s.tokens.DeleteTokensByCD(ctx, cd.ID)
		return err
	})
	retry("blobs", func() error {
		_, err := s.blobs.RemovePrefix(ctx, policy.CDBlobPrefix(cd.UserID, cd.ID))
		return err
	})
	retry("cd", func() error {
		return s.cds.DeleteCD(ctx, cd.ID)
	})
}
