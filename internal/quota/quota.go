// Package quota is the admission arithmetic for CD storage: which files a
// CD may accept and how the usage ledger moves when files come and go.
// The ledger invariant is that storage_used_bytes equals the sum of the
// sizes of the CD's files and never exceeds the CD's limit.
package quota

import (
	"errors"
	"fmt"

	"github.com/recdfyi/recd-server/internal/models"
)

const (
	// MaxFileBytes is the general per-file ceiling. It matches the CD
	// capacity, so a single maximal file can fill an empty CD exactly.
	MaxFileBytes int64 = 20 * 1024 * 1024

	// MaxVideoBytes caps video files tighter than the general ceiling.
	MaxVideoBytes int64 = 5 * 1024 * 1024
)

// Ceiling identifies which limit an admission check tripped. Quota
// refusals are not security sensitive, so the ceiling is surfaced to the
// client verbatim.
type Ceiling string

const (
	CeilingCD    Ceiling = "cd_storage"
	CeilingFile  Ceiling = "file_size"
	CeilingVideo Ceiling = "video_size"
)

var (
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrDisallowedType = errors.New("file type not allowed")

	// ErrNegativeUsage signals ledger corruption: a release would drive
	// storage_used_bytes or file_count below zero. Callers clamp at zero
	// and log; the error is never silently swallowed.
	ErrNegativeUsage = errors.New("quota ledger would go negative")
)

// QuotaError carries the specific ceiling that refused admission.
type QuotaError struct {
	Ceiling    Ceiling
	SizeBytes  int64
	LimitBytes int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (size %d > limit %d)", e.Ceiling, e.SizeBytes, e.LimitBytes)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// allowedMimeTypes maps every admissible content type to its file class.
var allowedMimeTypes = map[string]models.FileType{
	"image/jpeg":      models.FileTypeImage,
	"image/png":       models.FileTypeImage,
	"image/gif":       models.FileTypeImage,
	"image/webp":      models.FileTypeImage,
	"audio/mpeg":      models.FileTypeAudio,
	"audio/wav":       models.FileTypeAudio,
	"audio/ogg":       models.FileTypeAudio,
	"audio/mp4":       models.FileTypeAudio,
	"audio/x-m4a":     models.FileTypeAudio,
	"video/mp4":       models.FileTypeVideo,
	"video/webm":      models.FileTypeVideo,
	"video/quicktime": models.FileTypeVideo,
}

// FileTypeFor returns the file class for a content type, or false when
// the type is not admissible at all.
func FileTypeFor(mimeType string) (models.FileType, bool) {
	ft, ok := allowedMimeTypes[mimeType]
	return ft, ok
}

// CanAdmit decides whether a CD can accept a file of the given size and
// content type. The returned error says exactly which check refused:
// disallowed type, per-file ceiling, video ceiling, or CD headroom.
func CanAdmit(cd *models.CD, sizeBytes int64, mimeType string) error {
	fileType, ok := FileTypeFor(mimeType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDisallowedType, mimeType)
	}
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: size must be positive", ErrDisallowedType)
	}
	if fileType == models.FileTypeVideo && sizeBytes > MaxVideoBytes {
		return &QuotaError{Ceiling: CeilingVideo, SizeBytes: sizeBytes, LimitBytes: MaxVideoBytes}
	}
	if sizeBytes > MaxFileBytes {
		return &QuotaError{Ceiling: CeilingFile, SizeBytes: sizeBytes, LimitBytes: MaxFileBytes}
	}
	if cd.StorageUsedBytes+sizeBytes > cd.StorageLimitBytes {
		return &QuotaError{Ceiling: CeilingCD, SizeBytes: cd.StorageUsedBytes + sizeBytes, LimitBytes: cd.StorageLimitBytes}
	}
	return nil
}

// Release computes the ledger adjustment for removing a file. If the
// adjustment would go negative the result is clamped at zero and
// ErrNegativeUsage is returned alongside it so the caller can log the
// consistency fault.
func Release(usedBytes, fileCount, sizeBytes int64) (newUsed, newCount int64, err error) {
	newUsed = usedBytes - sizeBytes
	newCount = fileCount - 1
	if newUsed < 0 || newCount < 0 {
		if newUsed < 0 {
			newUsed = 0
		}
		if newCount < 0 {
			newCount = 0
		}
		return newUsed, newCount, ErrNegativeUsage
	}
	return newUsed, newCount, nil
}
