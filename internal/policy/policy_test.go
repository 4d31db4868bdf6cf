package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/quota"
)

var (
	owner = identity.Principal{UID: "owner-uid"}
	other = identity.Principal{UID: "other-uid"}
	anon  = identity.Anonymous

	baseTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
)

func testCD() *models.CD {
	return &models.CD{
		ID:                "cd-1",
		UserID:            owner.UID,
		Name:              "road trip mix",
		StorageLimitBytes: models.StorageLimitBytes,
		CreatedAt:         baseTime,
	}
}

func validToken(cdID string) *models.ShareToken {
	return &models.ShareToken{
		Token:     "tok-1",
		CDID:      cdID,
		CreatedBy: owner.UID,
		CreatedAt: baseTime,
		ExpiresAt: baseTime.Add(models.ShareTokenTTL),
	}
}

func TestCDCreate(t *testing.T) {
	now := baseTime

	t.Run("owner creates empty cd", func(t *testing.T) {
		cd := testCD()
		d := EvaluateCD(OpCreate, owner, nil, cd, nil, now)
		assert.True(t, d.Allowed)
	})

	t.Run("anonymous denied", func(t *testing.T) {
		cd := testCD()
		cd.UserID = ""
		d := EvaluateCD(OpCreate, anon, nil, cd, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("creating for someone else denied", func(t *testing.T) {
		cd := testCD()
		d := EvaluateCD(OpCreate, other, nil, cd, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("nonzero ledger seed is a consistency fault", func(t *testing.T) {
		cd := testCD()
		cd.StorageUsedBytes = 1
		d := EvaluateCD(OpCreate, owner, nil, cd, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("wrong limit is a consistency fault", func(t *testing.T) {
		cd := testCD()
		cd.StorageLimitBytes = 999
		d := EvaluateCD(OpCreate, owner, nil, cd, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})
}

// Cross-user isolation: read, update and delete must each be denied
// independently for a non-owner without a token on a private CD.
func TestCDCrossUserIsolation(t *testing.T) {
	now := baseTime
	cd := testCD()

	t.Run("read", func(t *testing.T) {
		d := EvaluateCD(OpRead, other, cd, nil, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
	t.Run("update", func(t *testing.T) {
		incoming := *cd
		incoming.Name = "stolen"
		d := EvaluateCD(OpUpdate, other, cd, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
	t.Run("delete", func(t *testing.T) {
		d := EvaluateCD(OpDelete, other, cd, nil, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
	t.Run("anonymous read", func(t *testing.T) {
		d := EvaluateCD(OpRead, anon, cd, nil, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
}

func TestCDReadGrants(t *testing.T) {
	now := baseTime
	cd := testCD()

	t.Run("owner reads", func(t *testing.T) {
		assert.True(t, EvaluateCD(OpRead, owner, cd, nil, nil, now).Allowed)
	})

	t.Run("valid token grants read to anyone", func(t *testing.T) {
		assert.True(t, EvaluateCD(OpRead, anon, cd, nil, validToken(cd.ID), now).Allowed)
		assert.True(t, EvaluateCD(OpRead, other, cd, nil, validToken(cd.ID), now).Allowed)
	})

	t.Run("token for a different cd grants nothing", func(t *testing.T) {
		d := EvaluateCD(OpRead, other, cd, nil, validToken("cd-other"), now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("expired token grants nothing", func(t *testing.T) {
		tok := validToken(cd.ID)
		d := EvaluateCD(OpRead, other, cd, nil, tok, tok.ExpiresAt.Add(time.Second))
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("public cd readable without token", func(t *testing.T) {
		pub := testCD()
		pub.IsPublic = true
		at := baseTime
		pub.PublicAt = &at
		assert.True(t, EvaluateCD(OpRead, anon, pub, nil, nil, now).Allowed)
		assert.True(t, EvaluateCD(OpRead, other, pub, nil, nil, now).Allowed)
	})

	t.Run("deleted cd invisible even to owner", func(t *testing.T) {
		del := testCD()
		at := baseTime
		del.DeletedAt = &at
		d := EvaluateCD(OpRead, owner, del, nil, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
}

// Ownership invariant: writes succeed iff requester owns the CD,
// regardless of other payload fields, and owner fields are immutable.
func TestCDUpdate(t *testing.T) {
	now := baseTime

	t.Run("owner edits name and label", func(t *testing.T) {
		cd := testCD()
		incoming := *cd
		incoming.Name = "summer 2003"
		incoming.Label = "burned with love"
		assert.True(t, EvaluateCD(OpUpdate, owner, cd, &incoming, nil, now).Allowed)
	})

	t.Run("owner cannot reassign ownership", func(t *testing.T) {
		cd := testCD()
		incoming := *cd
		incoming.UserID = other.UID
		d := EvaluateCD(OpUpdate, owner, cd, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("owner cannot raise the limit", func(t *testing.T) {
		cd := testCD()
		incoming := *cd
		incoming.StorageLimitBytes = 100 * 1024 * 1024
		d := EvaluateCD(OpUpdate, owner, cd, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("owner cannot move the ledger through an edit", func(t *testing.T) {
		cd := testCD()
		cd.StorageUsedBytes = 1024
		cd.FileCount = 1
		incoming := *cd
		incoming.StorageUsedBytes = 0
		d := EvaluateCD(OpUpdate, owner, cd, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("publishing requires public_at", func(t *testing.T) {
		cd := testCD()
		incoming := *cd
		incoming.IsPublic = true
		d := EvaluateCD(OpUpdate, owner, cd, &incoming, nil, now)
		require.ErrorIs(t, d.Reason, ErrConsistencyFault)

		at := now
		incoming.PublicAt = &at
		assert.True(t, EvaluateCD(OpUpdate, owner, cd, &incoming, nil, now).Allowed)
	})
}

func TestCDViewBump(t *testing.T) {
	now := baseTime
	pub := testCD()
	pub.IsPublic = true
	at := baseTime
	pub.PublicAt = &at
	pub.ViewCount = 7

	t.Run("non-owner bumps public cd by one", func(t *testing.T) {
		incoming := *pub
		incoming.ViewCount = 8
		assert.True(t, EvaluateCD(OpUpdate, other, pub, &incoming, nil, now).Allowed)
		assert.True(t, EvaluateCD(OpUpdate, anon, pub, &incoming, nil, now).Allowed)
	})

	t.Run("arbitrary view counts rejected", func(t *testing.T) {
		incoming := *pub
		incoming.ViewCount = 5000
		d := EvaluateCD(OpUpdate, other, pub, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("bump must not smuggle other changes", func(t *testing.T) {
		incoming := *pub
		incoming.ViewCount = 8
		incoming.Name = "defaced"
		d := EvaluateCD(OpUpdate, other, pub, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("no bump on private cd", func(t *testing.T) {
		priv := testCD()
		priv.ViewCount = 7
		incoming := *priv
		incoming.ViewCount = 8
		d := EvaluateCD(OpUpdate, other, priv, &incoming, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
}

func testFile(cd *models.CD, size int64, mime string, ft models.FileType) *models.File {
	return &models.File{
		ID:           "file-1",
		CDID:         cd.ID,
		Filename:     "file-1.mp4",
		OriginalName: "holiday.mp4",
		FileType:     ft,
		MimeType:     mime,
		SizeBytes:    size,
		StoragePath:  FileBlobPath(cd.UserID, cd.ID, "file-1", "mp4"),
		UploadedAt:   baseTime,
	}
}

// File-type and size admission, per the worked examples: 4 MB video
// fine, 6 MB video trips the video ceiling, 21 MB jpeg trips the
// general ceiling.
func TestFileAdmission(t *testing.T) {
	now := baseTime
	const mb = 1024 * 1024

	t.Run("4MB video admitted to empty cd", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 4*mb, "video/mp4", models.FileTypeVideo)
		assert.True(t, EvaluateFile(OpCreate, owner, cd, f, nil, now).Allowed)
	})

	t.Run("6MB video trips the video ceiling", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 6*mb, "video/mp4", models.FileTypeVideo)
		d := EvaluateFile(OpCreate, owner, cd, f, nil, now)
		require.False(t, d.Allowed)
		var qe *quota.QuotaError
		require.ErrorAs(t, d.Reason, &qe)
		assert.Equal(t, quota.CeilingVideo, qe.Ceiling)
	})

	t.Run("21MB jpeg trips the general ceiling", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 21*mb, "image/jpeg", models.FileTypeImage)
		f.StoragePath = FileBlobPath(cd.UserID, cd.ID, "file-1", "jpg")
		d := EvaluateFile(OpCreate, owner, cd, f, nil, now)
		require.False(t, d.Allowed)
		var qe *quota.QuotaError
		require.ErrorAs(t, d.Reason, &qe)
		assert.Equal(t, quota.CeilingFile, qe.Ceiling)
	})

	t.Run("disallowed content type refused", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 1*mb, "application/zip", models.FileTypeImage)
		d := EvaluateFile(OpCreate, owner, cd, f, nil, now)
		assert.ErrorIs(t, d.Reason, quota.ErrDisallowedType)
	})

	t.Run("no headroom refused", func(t *testing.T) {
		cd := testCD()
		cd.StorageUsedBytes = 19 * mb
		f := testFile(cd, 2*mb, "image/png", models.FileTypeImage)
		f.StoragePath = FileBlobPath(cd.UserID, cd.ID, "file-1", "png")
		d := EvaluateFile(OpCreate, owner, cd, f, nil, now)
		var qe *quota.QuotaError
		require.ErrorAs(t, d.Reason, &qe)
		assert.Equal(t, quota.CeilingCD, qe.Ceiling)
	})

	t.Run("non-owner cannot upload", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 1*mb, "video/mp4", models.FileTypeVideo)
		d := EvaluateFile(OpCreate, other, cd, f, nil, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("path disagreeing with owner is a consistency fault", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 1*mb, "video/mp4", models.FileTypeVideo)
		f.StoragePath = FileBlobPath(other.UID, cd.ID, "file-1", "mp4")
		d := EvaluateFile(OpCreate, owner, cd, f, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("declared type must match content type", func(t *testing.T) {
		cd := testCD()
		f := testFile(cd, 1*mb, "video/mp4", models.FileTypeImage)
		d := EvaluateFile(OpCreate, owner, cd, f, nil, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})
}

func TestFileReadAndDelete(t *testing.T) {
	now := baseTime
	cd := testCD()

	t.Run("read follows parent cd", func(t *testing.T) {
		assert.True(t, EvaluateFile(OpRead, owner, cd, nil, nil, now).Allowed)
		assert.False(t, EvaluateFile(OpRead, other, cd, nil, nil, now).Allowed)
		assert.True(t, EvaluateFile(OpRead, other, cd, nil, validToken(cd.ID), now).Allowed)
	})

	t.Run("delete is owner-only", func(t *testing.T) {
		assert.True(t, EvaluateFile(OpDelete, owner, cd, nil, nil, now).Allowed)
		assert.ErrorIs(t, EvaluateFile(OpDelete, other, cd, nil, nil, now).Reason, ErrUnauthorized)
	})

	t.Run("files are immutable", func(t *testing.T) {
		assert.ErrorIs(t, EvaluateFile(OpUpdate, owner, cd, nil, nil, now).Reason, ErrUnauthorized)
	})
}

func TestBlobWrite(t *testing.T) {
	cd := testCD()
	const mb = 1024 * 1024

	t.Run("owner writes into own prefix", func(t *testing.T) {
		path := FileBlobPath(cd.UserID, cd.ID, "f1", "png")
		assert.True(t, EvaluateBlobWrite(owner, cd, path, "image/png", 1*mb).Allowed)
	})

	t.Run("write outside own prefix denied", func(t *testing.T) {
		path := FileBlobPath(other.UID, cd.ID, "f1", "png")
		d := EvaluateBlobWrite(owner, cd, path, "image/png", 1*mb)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("thumbnail must be an image", func(t *testing.T) {
		path := ThumbnailBlobPath(cd.UserID, cd.ID, "f1", "jpg")
		assert.True(t, EvaluateBlobWrite(owner, cd, path, "image/jpeg", 64*1024).Allowed)

		d := EvaluateBlobWrite(owner, cd, path, "video/mp4", 64*1024)
		assert.ErrorIs(t, d.Reason, quota.ErrDisallowedType)
	})

	t.Run("malformed path denied", func(t *testing.T) {
		d := EvaluateBlobWrite(owner, cd, "users/../../etc/passwd", "image/png", 1024)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})
}

func TestShareTokenPolicy(t *testing.T) {
	now := baseTime
	cd := testCD()

	t.Run("owner issues with exact ttl", func(t *testing.T) {
		tok := validToken(cd.ID)
		d := EvaluateShareToken(OpCreate, owner, cd, nil, tok, now)
		assert.True(t, d.Allowed)
	})

	t.Run("non-owner cannot issue", func(t *testing.T) {
		tok := validToken(cd.ID)
		tok.CreatedBy = other.UID
		d := EvaluateShareToken(OpCreate, other, cd, nil, tok, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)
	})

	t.Run("wrong expiry is a consistency fault", func(t *testing.T) {
		tok := validToken(cd.ID)
		tok.ExpiresAt = tok.CreatedAt.Add(365 * 24 * time.Hour)
		d := EvaluateShareToken(OpCreate, owner, cd, nil, tok, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("token documents are world readable", func(t *testing.T) {
		assert.True(t, EvaluateShareToken(OpRead, anon, nil, validToken(cd.ID), nil, now).Allowed)
	})

	t.Run("holder of valid token bumps access count", func(t *testing.T) {
		tok := validToken(cd.ID)
		bumped := *tok
		bumped.AccessCount = 1
		assert.True(t, EvaluateShareToken(OpUpdate, anon, nil, tok, &bumped, now).Allowed)
	})

	t.Run("expired token cannot be bumped by a holder", func(t *testing.T) {
		tok := validToken(cd.ID)
		bumped := *tok
		bumped.AccessCount = 1
		d := EvaluateShareToken(OpUpdate, anon, nil, tok, &bumped, tok.ExpiresAt.Add(time.Millisecond))
		assert.ErrorIs(t, d.Reason, ErrTokenInvalid)
	})

	t.Run("non-increment update rejected", func(t *testing.T) {
		tok := validToken(cd.ID)
		extended := *tok
		extended.AccessCount = 1
		extended.ExpiresAt = tok.ExpiresAt.Add(24 * time.Hour)
		d := EvaluateShareToken(OpUpdate, anon, nil, tok, &extended, now)
		assert.ErrorIs(t, d.Reason, ErrUnauthorized)

		d = EvaluateShareToken(OpUpdate, owner, nil, tok, &extended, now)
		assert.ErrorIs(t, d.Reason, ErrConsistencyFault)
	})

	t.Run("delete is creator-only", func(t *testing.T) {
		tok := validToken(cd.ID)
		assert.True(t, EvaluateShareToken(OpDelete, owner, nil, tok, nil, now).Allowed)
		assert.ErrorIs(t, EvaluateShareToken(OpDelete, other, nil, tok, nil, now).Reason, ErrUnauthorized)
		assert.ErrorIs(t, EvaluateShareToken(OpDelete, anon, nil, tok, nil, now).Reason, ErrUnauthorized)
	})
}

func TestEmailLogPolicy(t *testing.T) {
	log := &models.EmailLog{ID: "log-1", UserID: owner.UID}

	assert.True(t, EvaluateEmailLog(OpCreate, owner, log).Allowed)
	assert.True(t, EvaluateEmailLog(OpRead, owner, log).Allowed)
	assert.ErrorIs(t, EvaluateEmailLog(OpRead, other, log).Reason, ErrUnauthorized)
	assert.ErrorIs(t, EvaluateEmailLog(OpUpdate, owner, log).Reason, ErrUnauthorized)
	assert.ErrorIs(t, EvaluateEmailLog(OpDelete, owner, log).Reason, ErrUnauthorized)
}

func TestUserPolicy(t *testing.T) {
	assert.True(t, EvaluateUser(OpRead, owner, owner.UID).Allowed)
	assert.True(t, EvaluateUser(OpUpdate, owner, owner.UID).Allowed)
	assert.ErrorIs(t, EvaluateUser(OpRead, other, owner.UID).Reason, ErrUnauthorized)
	assert.ErrorIs(t, EvaluateUser(OpUpdate, anon, owner.UID).Reason, ErrUnauthorized)
}
