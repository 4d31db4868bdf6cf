package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recdfyi/recd-server/internal/email"
	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/storage"
	"github.com/recdfyi/recd-server/internal/store"
)

var (
	ownerP = identity.Principal{UID: "owner-uid"}
	otherP = identity.Principal{UID: "other-uid"}
	anonP  = identity.Anonymous

	t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
)

// env wires every service over the in-memory stores with a controllable
// clock.
type env struct {
	stores *store.Memory
	blobs  *storage.MemoryBlobStore
	clock  time.Time

	cds    *CDService
	files  *FileService
	shares *ShareService
	market *MarketplaceService
	emails *EmailService
	users  *UserService
	relay  *fakeRelay
}

type fakeRelay struct {
	fail  error
	sends []string
}

func (r *fakeRelay) Send(_ context.Context, recipient string, _ email.Params) error {
	if r.fail != nil {
		return r.fail
	}
	r.sends = append(r.sends, recipient)
	return nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		stores: store.NewMemory(),
		blobs:  storage.NewMemoryBlobStore(),
		clock:  t0,
		relay:  &fakeRelay{},
	}
	now := func() time.Time { return e.clock }

	e.cds = NewCDService(e.stores, e.stores, e.stores, e.blobs, logger)
	e.cds.now = now
	e.files = NewFileService(e.stores, e.stores, e.stores, e.blobs, logger)
	e.files.now = now
	e.shares = NewShareService(e.stores, e.stores, e.stores, logger)
	e.shares.now = now
	e.market = NewMarketplaceService(e.stores, e.stores, logger)
	e.market.now = now
	e.emails = NewEmailService(e.stores, e.stores, e.shares, e.relay, "https://recd.fyi", logger)
	e.emails.now = now
	e.users = NewUserService(e.stores)
	return e
}

func (e *env) mustCreateCD(t *testing.T, p identity.Principal, name string) models.CD {
	t.Helper()
	cd, err := e.cds.Create(context.Background(), p, name, "")
	require.NoError(t, err)
	return cd
}

func (e *env) mustUpload(t *testing.T, p identity.Principal, cdID, name, mime string, size int) models.File {
	t.Helper()
	f, err := e.files.Upload(context.Background(), p, cdID, name, mime, make([]byte, size))
	require.NoError(t, err)
	return f
}
