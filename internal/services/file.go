package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/quota"
	"github.com/recdfyi/recd-server/internal/storage"
	"github.com/recdfyi/recd-server/internal/store"
)

const downloadLinkExpiry = 10 * time.Minute

type FileService struct {
	cds    store.CDStore
	files  store.FileStore
	tokens store.TokenStore
	blobs  storage.BlobStore
	logger *slog.Logger
	now    func() time.Time
}

func NewFileService(cds store.CDStore, files store.FileStore, tokens store.TokenStore, blobs storage.BlobStore, logger *slog.Logger) *FileService {
	return &FileService{cds: cds, files: files, tokens: tokens, blobs: blobs, logger: logger, now: time.Now}
}

// Upload admits one file into a CD. The policy evaluation against the
// snapshot is advisory; the authoritative quota check is the store's
// atomic admit, so concurrent uploads cannot jointly overrun the limit.
// Blob and metadata writes then run in parallel, and a failure on either
// side rolls back the other plus the ledger adjustment.
func (s *FileService) Upload(ctx context.Context, p identity.Principal, cdID, originalName, contentType string, data []byte) (models.File, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.File{}, policy.ErrUnauthorized
	}

	fileID := uuid.NewString()
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	if ext == "" {
		ext = "bin"
	}
	fileType, _ := quota.FileTypeFor(contentType)
	f := models.File{
		ID:           fileID,
		CDID:         cd.ID,
		Filename:     fmt.Sprintf("%s.%s", fileID, ext),
		OriginalName: originalName,
		FileType:     fileType,
		MimeType:     contentType,
		SizeBytes:    int64(len(data)),
		StoragePath:  policy.FileBlobPath(cd.UserID, cd.ID, fileID, ext),
		UploadedAt:   s.now(),
	}

	if d := policy.EvaluateFile(policy.OpCreate, p, &cd, &f, nil, s.now()); !d.Allowed {
		return models.File{}, d.Reason
	}
	if d := policy.EvaluateBlobWrite(p, &cd, f.StoragePath, contentType, f.SizeBytes); !d.Allowed {
		return models.File{}, d.Reason
	}

	// Reserve quota first; this is the authoritative admission.
	if _, err := s.cds.AdmitFile(ctx, cd.ID, f.SizeBytes); err != nil {
		return models.File{}, err
	}

	blobErr := make(chan error, 1)
	docErr := make(chan error, 1)
	go func() {
		blobErr <- s.blobs.Put(ctx, f.StoragePath, bytes.NewReader(data), f.SizeBytes, contentType)
	}()
	go func() {
		docErr <- s.files.CreateFile(ctx, f)
	}()
	bErr, dErr := <-blobErr, <-docErr

	if bErr != nil || dErr != nil {
		s.rollbackUpload(ctx, f, bErr == nil, dErr == nil)
		if bErr != nil {
			return models.File{}, fmt.Errorf("store blob: %w", bErr)
		}
		return models.File{}, fmt.Errorf("store metadata: %w", dErr)
	}
	return f, nil
}

func (s *FileService) rollbackUpload(ctx context.Context, f models.File, blobWritten, docWritten bool) {
	if blobWritten {
		if err := s.blobs.Remove(ctx, f.StoragePath); err != nil {
			s.logger.Error("upload rollback: remove blob", "path", f.StoragePath, "error", err)
		}
	}
	if docWritten {
		if err := s.files.DeleteFile(ctx, f.CDID, f.ID); err != nil {
			s.logger.Error("upload rollback: remove metadata", "file_id", f.ID, "error", err)
		}
	}
	if err := s.cds.ReleaseFile(ctx, f.CDID, f.SizeBytes); err != nil {
		s.logger.Error("upload rollback: release quota", "cd_id", f.CDID, "error", err)
	}
}

// Get returns a file's metadata and a short-lived download URL.
func (s *FileService) Get(ctx context.Context, p identity.Principal, cdID, fileID, token string) (models.File, string, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return models.File{}, "", policy.ErrUnauthorized
	}
	tok := loadToken(ctx, s.tokens, token)
	if d := policy.EvaluateFile(policy.OpRead, p, &cd, nil, tok, s.now()); !d.Allowed {
		return models.File{}, "", d.Reason
	}
	f, err := s.files.FileByID(ctx, cdID, fileID)
	if err != nil {
		return models.File{}, "", policy.ErrUnauthorized
	}
	if d := policy.EvaluateBlobRead(p, &cd, tok, s.now()); !d.Allowed {
		return models.File{}, "", d.Reason
	}
	url, err := s.blobs.PresignedGet(ctx, f.StoragePath, downloadLinkExpiry)
	if err != nil {
		return models.File{}, "", fmt.Errorf("download link: %w", err)
	}
	return f, url, nil
}

// List returns the files of a CD readable by the principal.
func (s *FileService) List(ctx context.Context, p identity.Principal, cdID, token string) ([]models.File, error) {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return nil, policy.ErrUnauthorized
	}
	tok := loadToken(ctx, s.tokens, token)
	if d := policy.EvaluateFile(policy.OpRead, p, &cd, nil, tok, s.now()); !d.Allowed {
		return nil, d.Reason
	}
	return s.files.FilesByCD(ctx, cdID)
}

// Delete removes a file's blob and metadata in parallel, then releases
// its quota. A ledger clamp is a consistency fault: logged loudly,
// with the delete itself still reported as successful.
func (s *FileService) Delete(ctx context.Context, p identity.Principal, cdID, fileID string) error {
	cd, err := s.cds.CDByID(ctx, cdID)
	if err != nil {
		return policy.ErrUnauthorized
	}
	if d := policy.EvaluateFile(policy.OpDelete, p, &cd, nil, nil, s.now()); !d.Allowed {
		return d.Reason
	}
	f, err := s.files.FileByID(ctx, cdID, fileID)
	if err != nil {
		return policy.ErrUnauthorized
	}

	blobErr := make(chan error, 1)
	docErr := make(chan error, 1)
	go func() {
		blobErr <- s.blobs.Remove(ctx, f.StoragePath)
	}()
	go func() {
		docErr <- s.files.DeleteFile(ctx, cdID, fileID)
	}()
	bErr, dErr := <-blobErr, <-docErr

	if dErr != nil {
		return fmt.Errorf("delete metadata: %w", dErr)
	}
	if bErr != nil {
		// Metadata is gone; the orphaned blob is logged for the sweep.
		s.logger.Error("delete blob failed", "path", f.StoragePath, "error", bErr)
	}

	if err := s.cds.ReleaseFile(ctx, cdID, f.SizeBytes); err != nil {
		if errors.Is(err, quota.ErrNegativeUsage) {
			s.logger.Error("quota ledger consistency fault on release",
				"cd_id", cdID, "file_id", fileID, "size", f.SizeBytes)
			return nil
		}
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
