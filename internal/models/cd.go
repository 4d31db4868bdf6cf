package models

import "time"

// StorageLimitBytes is the fixed capacity of every CD. The limit is not
// configurable per CD; it is stamped on the document at creation so the
// quota filter can assert against it server-side.
const StorageLimitBytes int64 = 20 * 1024 * 1024

type CD struct {
	ID                string     `bson:"_id" json:"id"`
	UserID            string     `bson:"user_id" json:"user_id"`
	Name              string     `bson:"name" json:"name" validate:"required,max=100"`
	Label             string     `bson:"label,omitempty" json:"label,omitempty"`
	StorageUsedBytes  int64      `bson:"storage_used_bytes" json:"storage_used_bytes"`
	StorageLimitBytes int64      `bson:"storage_limit_bytes" json:"storage_limit_bytes"`
	FileCount         int64      `bson:"file_count" json:"file_count"`
	IsPublic          bool       `bson:"is_public,omitempty" json:"is_public,omitempty"`
	PublicAt          *time.Time `bson:"public_at,omitempty" json:"public_at,omitempty"`
	ViewCount         int64      `bson:"view_count" json:"view_count"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	// DeletedAt marks the first phase of the delete saga. A CD with
	// DeletedAt set is invisible to every read; the sweeper removes its
	// files, tokens and blobs afterwards.
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"-"`
}
