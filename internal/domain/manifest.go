package domain

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// DownloadManifest lists the local files materialized by one acquisition run.
// The run that created it owns it and must Release it when the run ends.
type DownloadManifest struct {
	ImagePaths []string
	VideoPaths []string
	AudioPaths []string

	once sync.Once
}

// AllPaths returns every path in the manifest.
func (m *DownloadManifest) AllPaths() []string {
	paths := make([]string, 0, len(m.ImagePaths)+len(m.VideoPaths)+len(m.AudioPaths))
	paths = append(paths, m.ImagePaths...)
	paths = append(paths, m.VideoPaths...)
	return append(paths, m.AudioPaths...)
}

// Empty reports whether nothing was acquired.
func (m *DownloadManifest) Empty() bool {
	return len(m.ImagePaths) == 0 && len(m.VideoPaths) == 0 && len(m.AudioPaths) == 0
}

// Release deletes every file in the manifest. Safe to call more than once and on nil.
func (m *DownloadManifest) Release() error {
	if m == nil {
		return nil
	}
	var errs []error
	m.once.Do(func() {
		for _, p := range m.AllPaths() {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
