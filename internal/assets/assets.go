// Package assets is the gateway to binary image storage. It uploads and
// deletes blobs and hands back stable content URLs; it keeps no state and
// performs no retries.
package assets

import (
	"context"
	"errors"
	"io"
)

var (
	ErrUploadFailed = errors.New("blob upload failed")
	ErrDeleteFailed = errors.New("blob delete failed")
)

// Namespace partitions blobs by purpose inside the bucket.
type Namespace string

const (
	PostImages    Namespace = "post_images"
	ProfileImages Namespace = "profile_images"
)

// Store uploads and deletes blobs. Delete is safe for callers to treat as
// best-effort; retry policy belongs to the caller.
type Store interface {
	Upload(ctx context.Context, ns Namespace, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}
