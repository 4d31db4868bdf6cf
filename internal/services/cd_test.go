package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/store"
)

func TestCreateCD(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cd := e.mustCreateCD(t, ownerP, "road trip")
	assert.Equal(t, ownerP.UID, cd.UserID)
	assert.Equal(t, models.StorageLimitBytes, cd.StorageLimitBytes)
	assert.Zero(t, cd.StorageUsedBytes)
	assert.Zero(t, cd.FileCount)

	t.Run("anonymous cannot create", func(t *testing.T) {
		_, err := e.cds.Create(ctx, anonP, "nope", "")
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})

	t.Run("owner lists own", func(t *testing.T) {
		e.mustCreateCD(t, ownerP, "second")
		e.mustCreateCD(t, otherP, "not mine")

		cds, err := e.cds.List(ctx, ownerP)
		require.NoError(t, err)
		assert.Len(t, cds, 2)
	})
}

func TestCDServiceIsolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cd := e.mustCreateCD(t, ownerP, "private mix")

	_, err := e.cds.Get(ctx, otherP, cd.ID, "")
	assert.ErrorIs(t, err, policy.ErrUnauthorized)

	_, err = e.cds.Update(ctx, otherP, cd.ID, "hijacked", "")
	assert.ErrorIs(t, err, policy.ErrUnauthorized)

	err = e.cds.Delete(ctx, otherP, cd.ID)
	assert.ErrorIs(t, err, policy.ErrUnauthorized)

	// Missing CDs produce the same denial as forbidden ones.
	_, err = e.cds.Get(ctx, otherP, "no-such-cd", "")
	assert.ErrorIs(t, err, policy.ErrUnauthorized)
}

func TestPublishToggle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cd := e.mustCreateCD(t, ownerP, "mixtape")

	_, err := e.cds.Get(ctx, otherP, cd.ID, "")
	require.ErrorIs(t, err, policy.ErrUnauthorized)

	t.Run("only the owner publishes", func(t *testing.T) {
		_, err := e.cds.SetPublic(ctx, otherP, cd.ID, true)
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})

	pub, err := e.cds.SetPublic(ctx, ownerP, cd.ID, true)
	require.NoError(t, err)
	assert.True(t, pub.IsPublic)
	require.NotNil(t, pub.PublicAt)

	got, err := e.cds.Get(ctx, otherP, cd.ID, "")
	require.NoError(t, err)
	assert.Equal(t, cd.ID, got.ID)

	gotAnon, err := e.cds.Get(ctx, anonP, cd.ID, "")
	require.NoError(t, err)
	assert.Equal(t, cd.ID, gotAnon.ID)

	unpub, err := e.cds.SetPublic(ctx, ownerP, cd.ID, false)
	require.NoError(t, err)
	assert.False(t, unpub.IsPublic)
	assert.Nil(t, unpub.PublicAt)

	_, err = e.cds.Get(ctx, otherP, cd.ID, "")
	assert.ErrorIs(t, err, policy.ErrUnauthorized)
}

func TestGetWithShareToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cd := e.mustCreateCD(t, ownerP, "mixtape")
	tok, err := e.shares.Issue(ctx, ownerP, cd.ID)
	require.NoError(t, err)

	got, err := e.cds.Get(ctx, anonP, cd.ID, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, cd.ID, got.ID)

	t.Run("garbage token grants nothing", func(t *testing.T) {
		_, err := e.cds.Get(ctx, anonP, cd.ID, "bogus")
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})
}

// Deleting a CD cascades: the document vanishes first, then files,
// tokens and blobs are swept so nothing orphaned remains.
func TestDeleteCascade(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cd := e.mustCreateCD(t, ownerP, "doomed")
	e.mustUpload(t, ownerP, cd.ID, "a.png", "image/png", 1024)
	e.mustUpload(t, ownerP, cd.ID, "b.mp3", "audio/mpeg", 2048)
	tok, err := e.shares.Issue(ctx, ownerP, cd.ID)
	require.NoError(t, err)

	require.NoError(t, e.cds.Delete(ctx, ownerP, cd.ID))

	_, err = e.cds.Get(ctx, ownerP, cd.ID, "")
	assert.ErrorIs(t, err, policy.ErrUnauthorized, "deleted cd must be unreadable")

	files, err := e.stores.FilesByCD(ctx, cd.ID)
	require.NoError(t, err)
	assert.Empty(t, files, "no orphaned files")

	_, err = e.stores.TokenByID(ctx, tok.Token)
	assert.ErrorIs(t, err, store.ErrNotFound, "no orphaned tokens")

	assert.Zero(t, e.blobs.Len(), "no orphaned blobs")

	_, err = e.stores.CDByID(ctx, cd.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	t.Run("share link died with the cd", func(t *testing.T) {
		_, _, err := e.shares.Resolve(ctx, anonP, tok.Token)
		assert.ErrorIs(t, err, policy.ErrTokenInvalid)
	})
}

// A sweep interrupted between the mark and the cleanup (crash, exhausted
// retries) must be finished by the startup resume pass: the deleted_at
// marker is the durable state it picks up from.
func TestResumeSweeps(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cd := e.mustCreateCD(t, ownerP, "doomed")
	doomed := e.mustUpload(t, ownerP, cd.ID, "a.png", "image/png", 1024)
	tok, err := e.shares.Issue(ctx, ownerP, cd.ID)
	require.NoError(t, err)
	keeper := e.mustCreateCD(t, ownerP, "survivor")
	kept := e.mustUpload(t, ownerP, keeper.ID, "b.mp3", "audio/mpeg", 2048)

	// Mark without sweeping, as a crash mid-saga would leave it.
	require.NoError(t, e.stores.MarkDeleted(ctx, cd.ID, e.clock))

	require.NoError(t, e.cds.ResumeSweeps(ctx))

	_, err = e.stores.CDByID(ctx, cd.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	files, err := e.stores.FilesByCD(ctx, cd.ID)
	require.NoError(t, err)
	assert.Empty(t, files, "no orphaned files after resume")

	_, err = e.stores.TokenByID(ctx, tok.Token)
	assert.ErrorIs(t, err, store.ErrNotFound, "no orphaned tokens after resume")

	_, ok := e.blobs.Object(doomed.StoragePath)
	assert.False(t, ok, "no orphaned blobs after resume")

	t.Run("unmarked cds are untouched", func(t *testing.T) {
		_, err := e.stores.CDByID(ctx, keeper.ID)
		require.NoError(t, err)
		_, ok := e.blobs.Object(kept.StoragePath)
		assert.True(t, ok)
	})

	t.Run("idempotent with nothing to do", func(t *testing.T) {
		require.NoError(t, e.cds.ResumeSweeps(ctx))
	})
}

func TestUpdateCD(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cd := e.mustCreateCD(t, ownerP, "first draft")

	updated, err := e.cds.Update(ctx, ownerP, cd.ID, "final cut", "for maria")
	require.NoError(t, err)
	assert.Equal(t, "final cut", updated.Name)
	assert.Equal(t, "for maria", updated.Label)

	got, err := e.stores.CDByID(ctx, cd.ID)
	require.NoError(t, err)
	assert.Equal(t, "final cut", got.Name)
	assert.Equal(t, ownerP.UID, got.UserID)
}
