package downloader

import (
	"context"
	"io"
)

// Downloader fetches media content from URLs.
type Downloader interface {
	// Download fetches a URL, returns content reader and size (-1 if unknown).
	// Caller is responsible for closing the reader.
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)

	// SaveToFile downloads url into path and returns the bytes written.
	// A partially written file is removed on failure.
	SaveToFile(ctx context.Context, url, path string) (int64, error)
}
