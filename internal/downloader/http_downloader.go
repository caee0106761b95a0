package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/threadgrabba/internal/config"
	"github.com/iconidentify/threadgrabba/internal/domain"
)

// ErrURLExpired is returned when the media CDN refuses a signed URL.
var ErrURLExpired = errors.New("media URL expired or forbidden")

// HTTPDownloader implements Downloader using HTTP requests.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	referer   string
	cfg       config.DownloadConfig
	logger    *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media downloader. Callers bound
// each download with a context deadline; the client itself only limits how
// long it waits for response headers.
func NewHTTPDownloader(cfg config.DownloadConfig, referer string, logger *slog.Logger) *HTTPDownloader {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &HTTPDownloader{
		client: &http.Client{
			Transport: transport,
		},
		userAgent: cfg.UserAgent,
		referer:   referer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Download fetches url in a single attempt. Retries are the caller's concern.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	// Set headers to mimic browser request
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/*,video/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if d.referer != "" {
		req.Header.Set("Referer", d.referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, 0, ErrURLExpired
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, 0, domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, 0, domain.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	size := resp.ContentLength
	return newProgressReader(resp.Body, size, d.cfg.ReadTimeout, d.logger.With("url", url)), size, nil
}

// SaveToFile downloads url into path.
func (d *HTTPDownloader) SaveToFile(ctx context.Context, url, path string) (int64, error) {
	body, _, err := d.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("write file: %w", err)
	}
	if n == 0 {
		os.Remove(path)
		return 0, fmt.Errorf("write file: empty response body")
	}
	return n, nil
}

// progressReader wraps an io.ReadCloser to track download progress
// and detect stalls (no data for readTimeout).
type progressReader struct {
	reader      io.ReadCloser
	total       int64
	downloaded  int64
	readTimeout time.Duration
	lastRead    time.Time
	lastLog     time.Time
	logger      *slog.Logger
	mu          sync.Mutex
	closed      bool
}

func newProgressReader(r io.ReadCloser, total int64, readTimeout time.Duration, logger *slog.Logger) *progressReader {
	now := time.Now()
	return &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		lastRead:    now,
		lastLog:     now,
		logger:      logger,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if n > 0 {
		p.downloaded += int64(n)
		p.lastRead = now

		// Log progress every 30 seconds
		if now.Sub(p.lastLog) > 30*time.Second {
			p.logProgress()
			p.lastLog = now
		}
	}

	// Check for stall on any read (including zero-byte reads)
	if err == nil && p.readTimeout > 0 && now.Sub(p.lastRead) > p.readTimeout {
		return n, fmt.Errorf("download stalled: no data received for %v", p.readTimeout)
	}

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	if p.downloaded > 0 {
		p.logger.Debug("download finished", "size", humanize.Bytes(uint64(p.downloaded)))
	}
	p.mu.Unlock()

	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Info("download progress",
			"downloaded", humanize.Bytes(uint64(p.downloaded)),
			"total", humanize.Bytes(uint64(p.total)),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("download progress",
			"downloaded", humanize.Bytes(uint64(p.downloaded)),
		)
	}
}
