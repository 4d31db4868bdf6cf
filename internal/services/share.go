package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/store"
)

type ShareService struct {
	cds    store.CDStore
	files  store.FileStore
	tokens store.TokenStore
	logger *slog.Logger
	now    func() time.Time
}

func NewShareService(cds store.CDStore, files store.FileStore, tokens store.TokenStore, logger *slog.Logger) *ShareService {
	return &ShareService{cds: cds, files: files, tokens: tokens, logger: logger, now: time.Now}
}

// generateToken returns 32 hex chars of cryptographic randomness; the
// token value is the capability, so it must be unguessable.
func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue mints a 30-day share token for a CD owned by the principal.
func (s *ShareService) Issue(ctx context.Context, p identity.Principal, cdID string) (models.ShareToken, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.ShareToken{}, policy.ErrUnauthorized
	}

	value, err := generateToken()
	if err != nil {
		return models.ShareToken{}, err
	}
	now := s.now()
	tok := models.ShareToken{
		Token:     value,
		CDID:      cd.ID,
		CreatedBy: p.UID,
		CreatedAt: now,
		ExpiresAt: now.Add(models.ShareTokenTTL),
	}
	if d := policy.EvaluateShareToken(policy.OpCreate, p, &cd, nil, &tok, now); !d.Allowed {
		return models.ShareToken{}, d.Reason
	}
	if err := s.tokens.CreateToken(ctx, tok); err != nil {
		return models.ShareToken{}, err
	}
	return tok, nil
}

// Validate resolves a token string to its CD id using the server clock.
// It mutates nothing: validating twice yields the same answer and does
// not touch the access count. Expired and nonexistent tokens are
// indistinguishable to the caller.
func (s *ShareService) Validate(ctx context.Context, token string) (string, error) {
	tok, err := s.tokens.TokenByID(ctx, token)
	if err != nil {
		return "", policy.ErrTokenInvalid
	}
	if !tok.Valid(s.now()) {
		return "", policy.ErrTokenInvalid
	}
	return tok.CDID, nil
}

// Resolve is the consumer's entry point: it validates the token,
// records the access as the explicit separate +1 mutation, and returns
// the shared CD with its files.
func (s *ShareService) Resolve(ctx context.Context, p identity.Principal, token string) (models.CD, []models.File, error) {
	tok, err := s.tokens.TokenByID(ctx, token)
	if err != nil {
		return models.CD{}, nil, policy.ErrTokenInvalid
	}
	now := s.now()
	if !tok.Valid(now) {
		return models.CD{}, nil, policy.ErrTokenInvalid
	}

	cd, err := s.cds.CDByID(ctx, tok.CDID)
	if err != nil {
		// Token outlived its CD (cascade in flight); treat as invalid.
		return models.CD{}, nil, policy.ErrTokenInvalid
	}
	if d := policy.EvaluateCD(policy.OpRead, p, &cd, nil, &tok, now); !d.Allowed {
		return models.CD{}, nil, policy.ErrTokenInvalid
	}

	// The access bump is policy-checked like any other token update.
	bumped := tok
	bumped.AccessCount++
	if d := policy.EvaluateShareToken(policy.OpUpdate, p, nil, &tok, &bumped, now); d.Allowed {
		if err := s.tokens.IncrementAccess(ctx, token); err != nil {
			s.logger.Warn("record share access", "token_cd", tok.CDID, "error", err)
		}
	}

	files, err := s.files.FilesByCD(ctx, cd.ID)
	if err != nil {
		return models.CD{}, nil, err
	}
	return cd, files, nil
}

// Revoke deletes a token; only its creator may do so.
func (s *ShareService) Revoke(ctx context.Context, p identity.Principal, token string) error {
	tok, err := s.tokens.TokenByID(ctx, token)
	if err != nil {
		return policy.ErrUnauthorized
	}
	if d := policy.EvaluateShareToken(policy.OpDelete, p, nil, &tok, nil, s.now()); !d.Allowed {
		return d.Reason
	}
	return s.tokens.DeleteToken(ctx, token)
}
