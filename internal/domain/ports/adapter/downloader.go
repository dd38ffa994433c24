package adapter

import "context"

// Downloader materialises generated documents for the user and returns the
// written location.
type Downloader interface {
	FromURL(ctx context.Context, url, name string) (string, error)
	FromBytes(ctx context.Context, data []byte, name string) (string, error)
}
