package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/store"
)

type MarketplaceService struct {
	cds    store.CDStore
	files  store.FileStore
	logger *slog.Logger
	now    func() time.Time
}

func NewMarketplaceService(cds store.CDStore, files store.FileStore, logger *slog.Logger) *MarketplaceService {
	return &MarketplaceService{cds: cds, files: files, logger: logger, now: time.Now}
}

// List returns public CDs, newest publication first, optionally
// filtered by a case-insensitive name substring. No ranking.
func (s *MarketplaceService) List(ctx context.Context, q string) ([]models.CD, error) {
	cds, err := s.cds.PublicCDs(ctx)
	if err != nil {
		return nil, err
	}
	if q == "" {
		return cds, nil
	}
	q = strings.ToLower(q)
	filtered := cds[:0]
	for _, cd := range cds {
		if strings.Contains(strings.ToLower(cd.Name), q) {
			filtered = append(filtered, cd)
		}
	}
	return filtered, nil
}

// View returns a public CD with its files and records the visit. The
// bump is the one mutation a non-owner may perform, policy-checked as
// a strict +1; owner views are not counted.
func (s *MarketplaceService) View(ctx context.Context, p identity.Principal, cdID string) (models.CD, []models.File, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.CD{}, nil, store.ErrNotFound
	}
	// The marketplace lists public CDs only; anything unpublished is
	// absent from this surface, the owner's own copy included.
	if !cd.IsPublic || cd.DeletedAt != nil {
		return models.CD{}, nil, store.ErrNotFound
	}
	if d := policy.EvaluateCD(policy.OpRead, p, &cd, nil, nil, s.now()); !d.Allowed {
		return models.CD{}, nil, d.Reason
	}

	if !p.IsOwner(cd.UserID) {
		bumped := cd
		bumped.ViewCount++
		if d := policy.EvaluateCD(policy.OpUpdate, p, &cd, &bumped, nil, s.now()); d.Allowed {
			if err := s.cds.IncrementViews(ctx, cdID); err != nil {
				s.logger.Warn("record marketplace view", "cd_id", cdID, "error", err)
			} else {
				cd.ViewCount++
			}
		}
	}

	files, err := s.files.FilesByCD(ctx, cdID)
	if err != nil {
		return models.CD{}, nil, err
	}
	return cd, files, nil
}
