package models

import "time"

type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeAudio FileType = "audio"
	FileTypeVideo FileType = "video"
)

type File struct {
	ID           string    `bson:"_id" json:"id"`
	CDID         string    `bson:"cd_id" json:"cd_id"`
	Filename     string    `bson:"filename" json:"filename"`
	OriginalName string    `bson:"original_name" json:"original_name"`
	FileType     FileType  `bson:"file_type" json:"file_type"`
	MimeType     string    `bson:"mime_type" json:"mime_type"`
	SizeBytes    int64     `bson:"size_bytes" json:"size_bytes"`
	StoragePath  string    `bson:"storage_path" json:"storage_path"`
	UploadedAt   time.Time `bson:"uploaded_at" json:"uploaded_at"`
}
