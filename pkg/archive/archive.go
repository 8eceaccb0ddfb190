// Package archive writes and restores .tar.gz backups of the game store
// and its config file.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	storeEntry    = "data/mushgames.bolt"
	manifestEntry = "manifest.json"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	Name      string               `json:"name"`
	Records   int                  `json:"records"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "bolt" or "conf"
}

// Snapshotter writes a consistent copy of a live store.
type Snapshotter interface {
	Snapshot(w io.Writer) (int, error)
}

// Params holds all inputs needed to create an archive.
type Params struct {
	Store    Snapshotter
	ConfPath string // empty = skip
	Dir      string // output directory
	Name     string // arena name for the manifest
	Server   string // server version for the manifest
	Now      func() time.Time
}

// Create writes a new archive into p.Dir and returns its path.
func Create(p Params) (string, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", p.Dir, err)
	}

	// The snapshot is staged so its size is known for the tar header.
	staged, err := os.CreateTemp("", "mushgames-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("archive: stage snapshot: %w", err)
	}
	defer os.Remove(staged.Name())
	defer staged.Close()
	records, err := p.Store.Snapshot(staged)
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("archive: rewind snapshot: %w", err)
	}

	ts := now()
	path := filepath.Join(p.Dir, fmt.Sprintf("archive-%s.tar.gz", ts.Format("20060102-150405")))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", path, err)
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	manifest := Manifest{
		Version:   1,
		Server:    p.Server,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Name:      p.Name,
		Records:   records,
		Files:     make(map[string]FileEntry),
	}

	entry, err := addFile(tw, staged, storeEntry, ts)
	if err != nil {
		return "", err
	}
	entry.Type = "bolt"
	manifest.Files[storeEntry] = entry

	if p.ConfPath != "" {
		if f, err := os.Open(p.ConfPath); err == nil {
			name := "conf/" + filepath.Base(p.ConfPath)
			entry, err := addFile(tw, f, name, ts)
			f.Close()
			if err != nil {
				return "", err
			}
			entry.Type = "conf"
			manifest.Files[name] = entry
		}
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: manifestEntry, Size: int64(len(manifestJSON)), Mode: 0644, ModTime: ts}); err != nil {
		return "", fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return "", fmt.Errorf("archive: write manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("archive: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("archive: close gzip: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("archive: close %s: %w", path, err)
	}
	return path, nil
}

// addFile copies f into the tar under name, computing its SHA-256 on the way.
func addFile(tw *tar.Writer, f *os.File, name string, mod time.Time) (FileEntry, error) {
	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", name, err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: name, Size: info.Size(), Mode: 0644, ModTime: mod}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", name, err)
	}
	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", name, err)
	}
	return FileEntry{SHA256: hex.EncodeToString(h.Sum(nil)), Size: written}, nil
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
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
