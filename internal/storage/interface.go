package storage

import "context"

// ObjectStore is the remote side of an upload: a single authenticated
// put-object call.
type ObjectStore interface {
	// PutObject uploads the local file at path under bucket/key.
	PutObject(ctx context.Context, bucket, key, path string) error

	// Provider returns the name of the storage provider (e.g., "s3", "filesystem").
	Provider() string
}

// ObjectKey returns the destination key for an artifact file name. With a
// folder the key is "<folder>/<name>", otherwise just the name.
func ObjectKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
