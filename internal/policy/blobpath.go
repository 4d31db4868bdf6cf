package policy

import (
	"fmt"
	"strings"
)

// Blob object keys are self-describing: the owner and CD are part of the
// path, and the engine rejects any write whose path disagrees with the
// document it claims to belong to. This is what prevents path-confusion
// writes into another user's prefix.

type BlobKind int

const (
	BlobFile BlobKind = iota
	BlobThumbnail
)

// BlobRef is a parsed blob object key.
type BlobRef struct {
	OwnerUID string
	CDID     string
	FileID   string
	Kind     BlobKind
	Ext      string
}

func FileBlobPath(ownerUID, cdID, fileID, ext string) string {
	return fmt.Sprintf("users/%s/cds/%s/files/%s.%s", ownerUID, cdID, fileID, ext)
}

func ThumbnailBlobPath(ownerUID, cdID, fileID, ext string) string {
	return fmt.Sprintf("users/%s/cds/%s/thumbnails/%s_thumb.%s", ownerUID, cdID, fileID, ext)
}

// CDBlobPrefix is the common prefix of every blob belonging to a CD,
// used by the delete saga to sweep objects.
func CDBlobPrefix(ownerUID, cdID string) string {
	return fmt.Sprintf("users/%s/cds/%s/", ownerUID, cdID)
}

// ParseBlobPath splits an object key into its reference parts. It fails
// on any path that does not match the two admitted layouts exactly.
func ParseBlobPath(path string) (BlobRef, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 6 || parts[0] != "users" || parts[2] != "cds" {
		return BlobRef{}, fmt.Errorf("malformed blob path %q", path)
	}
	ref := BlobRef{OwnerUID: parts[1], CDID: parts[3]}
	if ref.OwnerUID == "" || ref.CDID == "" {
		return BlobRef{}, fmt.Errorf("malformed blob path %q", path)
	}

	name := parts[5]
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return BlobRef{}, fmt.Errorf("blob path %q has no extension", path)
	}
	base, ext := name[:dot], name[dot+1:]

	switch parts[4] {
	case "files":
		ref.Kind = BlobFile
	case "thumbnails":
		ref.Kind = BlobThumbnail
		var ok bool
		base, ok = strings.CutSuffix(base, "_thumb")
		if !ok {
			return BlobRef{}, fmt.Errorf("thumbnail path %q missing _thumb suffix", path)
		}
	default:
		return BlobRef{}, fmt.Errorf("malformed blob path %q", path)
	}
	if base == "" {
		return BlobRef{}, fmt.Errorf("malformed blob path %q", path)
	}
	ref.FileID = base
	ref.Ext = ext
	return ref, nil
}
