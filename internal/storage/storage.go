// Package storage places finished outputs on local disk and optionally
// publishes them to S3.
package storage

import "context"

// Storage decides where outputs are written and publishes them.
type Storage interface {
	// OutputPath returns the local path for an output file named name.
	OutputPath(name string) string

	// Publish uploads the file at path under key and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, path, key string) (url string, err error)
}
