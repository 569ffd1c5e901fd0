package worker

import (
	"context"
)

// Interfaces for dependency injection to allow testing.

// ObjectStore receives compressed artifacts.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, path string) error
}

// Notifier is told about uploads that were dropped and drains that timed out.
type Notifier interface {
	SendAlert(ctx context.Context, source string, severity string, message string) error
}

// CompressFunc turns a segment into an artifact and returns the artifact path.
type CompressFunc func(source string) (string, error)
