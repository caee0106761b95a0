package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/links"
)

type recordingExtractor struct {
	urls []string
}

func (r *recordingExtractor) Extract(ctx context.Context, url string) domain.ExtractionOutcome {
	r.urls = append(r.urls, url)
	return domain.SinglePostOutcome(domain.Post{ID: "1", Text: url})
}

func TestRouter(t *testing.T) {
	th, ig := &recordingExtractor{}, &recordingExtractor{}
	r := NewRouter().Handle(links.PlatformThreads, th).Handle(links.PlatformInstagram, ig)
	ctx := context.Background()

	tests := []struct {
		url     string
		want    *recordingExtractor
		wantErr error
	}{
		{url: testURL, want: th},
		{url: "https://www.instagram.com/reel/ABC123", want: ig},
		{url: "https://x.com/alice/status/1", wantErr: domain.ErrUnsupportedURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			before := len(th.urls) + len(ig.urls)
			out := r.Extract(ctx, tt.url)
			if tt.wantErr != nil {
				if !errors.Is(out.Err(), tt.wantErr) {
					t.Errorf("Err() = %v, want %v", out.Err(), tt.wantErr)
				}
				if len(th.urls)+len(ig.urls) != before {
					t.Error("no extractor should run")
				}
				return
			}
			if n := len(tt.want.urls); n == 0 || tt.want.urls[n-1] != tt.url {
				t.Errorf("url not routed to the expected extractor: %v", tt.want.urls)
			}
		})
	}
}

func TestRouter_UnregisteredPlatform(t *testing.T) {
	r := NewRouter().Handle(links.PlatformThreads, &recordingExtractor{})
	out := r.Extract(context.Background(), "https://www.instagram.com/p/ABC")
	if !errors.Is(out.Err(), domain.ErrUnsupportedURL) {
		t.Errorf("Err() = %v, want ErrUnsupportedURL", out.Err())
	}
}
