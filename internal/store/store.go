// Package store defines the document-store ports the services depend
// on, with a MongoDB implementation for production and an in-memory one
// for tests. The policy engine never touches a store; services evaluate
// policy against snapshots read through these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/recdfyi/recd-server/internal/models"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("document already exists")
)

type UserStore interface {
	CreateUser(ctx context.Context, user models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, uid string) (models.User, error)
	SetUsername(ctx context.Context, uid, username string) error
}

type CDStore interface {
	CreateCD(ctx context.Context, cd models.CD) error
	CDByID(ctx context.Context, id string) (models.CD, error)
	CDsByOwner(ctx context.Context, uid string) ([]models.CD, error)
	// UpdateCD replaces the owner-editable fields (name, label,
	// is_public, public_at) of an existing CD.
	UpdateCD(ctx context.Context, cd models.CD) error

	// AdmitFile atomically adds one file of the given size to the CD's
	// ledger, but only if the CD still has headroom at the moment of the
	// update. The headroom check and the increment are one conditional
	// operation so concurrent uploads cannot jointly race past the
	// limit. Returns the post-admission snapshot, a *quota.QuotaError
	// when headroom is gone, or ErrNotFound.
	AdmitFile(ctx context.Context, cdID string, sizeBytes int64) (models.CD, error)

	// ReleaseFile is the inverse adjustment on file deletion. The ledger
	// is clamped at zero; a clamp is reported as quota.ErrNegativeUsage
	// after the write so the caller can log the consistency fault.
	ReleaseFile(ctx context.Context, cdID string, sizeBytes int64) error

	// MarkDeleted is phase one of the delete saga: it hides the CD from
	// every read before dependents are swept.
	MarkDeleted(ctx context.Context, cdID string, at time.Time) error
	// DeletedCDs returns CDs whose mark is set but whose sweep has not
	// finished; the resume pass re-runs their sweeps at startup.
	DeletedCDs(ctx context.Context) ([]models.CD, error)
	DeleteCD(ctx context.Context, cdID string) error

	PublicCDs(ctx context.Context) ([]models.CD, error)
	// IncrementViews bumps view_count by exactly one.
	IncrementViews(ctx context.Context, cdID string) error
}

type FileStore interface {
	CreateFile(ctx context.Context, f models.File) error
	FileByID(ctx context.Context, cdID, fileID string) (models.File, error)
	FilesByCD(ctx context.Context, cdID string) ([]models.File, error)
	DeleteFile(ctx context.Context, cdID, fileID string) error
	// DeleteFilesByCD removes all files of a CD and reports how many
	// were removed; used by the delete saga's sweep.
	DeleteFilesByCD(ctx context.Context, cdID string) (int64, error)
}

type TokenStore interface {
	CreateToken(ctx context.Context, t models.ShareToken) error
	TokenByID(ctx context.Context, token string) (models.ShareToken, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteTokensByCD(ctx context.Context, cdID string) (int64, error)
	// IncrementAccess bumps access_count by exactly one.
	IncrementAccess(ctx context.Context, token string) error
}

type EmailLogStore interface {
	CreateEmailLog(ctx context.Context, l models.EmailLog) error
	// ResolveEmailLog transitions a pending log to sent or failed.
	ResolveEmailLog(ctx context.Context, id string, status models.EmailStatus, errMsg string) error
	EmailLogsByUser(ctx context.Context, uid string) ([]models.EmailLog, error)
}

// Stores bundles every port; both implementations satisfy it.
type Stores interface {
	UserStore
	CDStore
	FileStore
	TokenStore
	EmailLogStore
}
