package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Info holds metadata about an existing archive file.
type Info struct {
	Path      string
	Filename  string
	Size      int64
	Timestamp string // from the manifest, or the file mod time
	Name      string
	Records   int
}

// List scans dir for archives, newest first.
func List(dir string) ([]Info, error) {
	pattern := filepath.Join(dir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var archives []Info
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		ai := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      st.Size(),
			Timestamp: st.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		}
		if m, err := readManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.Name = m.Name
			ai.Records = m.Records
		}
		archives = append(archives, ai)
	}

	// RFC3339 timestamps sort lexically.
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp > archives[j].Timestamp
	})
	return archives, nil
}

// Prune deletes all but the newest keep archives in dir.
func Prune(dir string, keep int) (int, error) {
	archives, err := List(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := keep; i < len(archives); i++ {
		if err := os.Remove(archives[i].Path); err != nil {
			return removed, fmt.Errorf("archive: prune %s: %w", archives[i].Filename, err)
		}
		removed++
	}
	return removed, nil
}

func readManifest(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, errors.New("manifest.json not found in archive")
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name != manifestEntry {
			continue
		}
		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, err
		}
		return &m, nil
	}
}
