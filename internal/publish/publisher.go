// Package publish writes finished notes to their destination.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/russross/blackfriday/v2"

	"github.com/iconidentify/threadgrabba/internal/config"
)

// Publisher stores a note and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, markdown string, mediaPaths []string, title string) (string, error)
}

// FilesystemPublisher writes notes as markdown (and optionally HTML) files
// under one output directory.
type FilesystemPublisher struct {
	outputDir  string
	renderHTML bool
	keepMedia  bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewFilesystemPublisher creates a filesystem publisher.
func NewFilesystemPublisher(cfg config.PublishConfig, logger *slog.Logger) *FilesystemPublisher {
	return &FilesystemPublisher{
		outputDir:  cfg.OutputDir,
		renderHTML: cfg.RenderHTML,
		keepMedia:  cfg.KeepMedia,
		now:        time.Now,
		logger:     logger,
	}
}

// Publish writes <name>.md (plus <name>.html when enabled) and copies media
// into <name>_media/. It returns the markdown file path.
func (p *FilesystemPublisher) Publish(ctx context.Context, markdown string, mediaPaths []string, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	base, mdFile, err := p.reserve(FileName(title, p.now()))
	if err != nil {
		return "", err
	}

	var doc strings.Builder
	if title != "" {
		doc.WriteString("# " + title + "\n\n")
	}
	doc.WriteString(strings.TrimSpace(markdown))
	doc.WriteString("\n")

	if p.keepMedia && len(mediaPaths) > 0 {
		links, err := p.copyMedia(ctx, base, mediaPaths)
		if err != nil {
			mdFile.Close()
			os.Remove(mdFile.Name())
			return "", err
		}
		if len(links) > 0 {
			doc.WriteString("\n## Media\n\n")
			for _, l := range links {
				doc.WriteString("- [" + l + "](" + l + ")\n")
			}
		}
	}

	if _, err := io.WriteString(mdFile, doc.String()); err != nil {
		mdFile.Close()
		os.Remove(mdFile.Name())
		return "", fmt.Errorf("write note: %w", err)
	}
	if err := mdFile.Close(); err != nil {
		return "", fmt.Errorf("close note: %w", err)
	}

	if p.renderHTML {
		htmlPath := filepath.Join(p.outputDir, base+".html")
		if err := os.WriteFile(htmlPath, RenderHTML(title, doc.String()), 0644); err != nil {
			// The markdown note is the primary artifact.
			p.logger.Warn("failed to write html rendition", "path", htmlPath, "error", err)
		}
	}

	p.logger.Info("note published", "path", mdFile.Name(), "media", len(mediaPaths))
	return mdFile.Name(), nil
}

// reserve creates the markdown file exclusively, adding a counter when a
// note with the same name already exists.
func (p *FilesystemPublisher) reserve(base string) (string, *os.File, error) {
	name := base
	for i := 2; i < 100; i++ {
		f, err := os.OpenFile(filepath.Join(p.outputDir, name+".md"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return name, f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", nil, fmt.Errorf("create note: %w", err)
		}
		name = base + "_" + strconv.Itoa(i)
	}
	return "", nil, fmt.Errorf("create note: too many notes named %s", base)
}

func (p *FilesystemPublisher) copyMedia(ctx context.Context, base string, paths []string) ([]string, error) {
	mediaDir := base + "_media"
	if err := os.MkdirAll(filepath.Join(p.outputDir, mediaDir), 0755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	links := make([]string, 0, len(paths))
	for _, src := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := filepath.ToSlash(filepath.Join(mediaDir, filepath.Base(src)))
		if err := copyFile(src, filepath.Join(p.outputDir, rel)); err != nil {
			return nil, fmt.Errorf("copy media %s: %w", filepath.Base(src), err)
		}
		links = append(links, rel)
	}
	return links, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RenderHTML converts a markdown note into a standalone HTML page.
func RenderHTML(title, markdown string) []byte {
	body := blackfriday.Run([]byte(markdown))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	sb.WriteString(escapeHTML(title))
	sb.WriteString("</title>\n</head>\n<body>\n")
	sb.Write(body)
	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String())
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
