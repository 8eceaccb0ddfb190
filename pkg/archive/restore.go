package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorrupt is returned when an archive fails its checksums.
var ErrCorrupt = errors.New("archive is corrupt")

// RestoreParams holds all inputs needed to restore an archive.
type RestoreParams struct {
	ArchivePath string
	StoreDest   string // destination for the bolt file; must not be open
	ConfDest    string // empty = skip
	// OverwriteConf replaces an existing, different config file.
	OverwriteConf bool
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	Manifest      Manifest
	FilesRestored int
	Warnings      []string
}

// Restore validates an archive and copies its files into place.
func Restore(p RestoreParams) (*RestoreResult, error) {
	tmpDir, err := os.MkdirTemp("", "mushgames-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extract(p.ArchivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("restore: extract: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, manifestEntry))
	if err != nil {
		return nil, fmt.Errorf("restore: %w: no manifest", ErrCorrupt)
	}
	result := &RestoreResult{}
	if err := json.Unmarshal(data, &result.Manifest); err != nil {
		return nil, fmt.Errorf("restore: parse manifest: %w", err)
	}

	for name, entry := range result.Manifest.Files {
		ok, err := validateChecksum(filepath.Join(tmpDir, filepath.FromSlash(name)), entry.SHA256)
		if err != nil {
			return nil, fmt.Errorf("restore: checksum %s: %w", name, err)
		}
		if !ok {
			return nil, fmt.Errorf("restore: %w: checksum mismatch for %s", ErrCorrupt, name)
		}
	}

	storeSrc := filepath.Join(tmpDir, filepath.FromSlash(storeEntry))
	if _, err := os.Stat(storeSrc); err != nil {
		return nil, fmt.Errorf("restore: %w: no store in archive", ErrCorrupt)
	}
	if err := os.MkdirAll(filepath.Dir(p.StoreDest), 0755); err != nil {
		return nil, fmt.Errorf("restore: create store dir: %w", err)
	}
	if err := copyFile(storeSrc, p.StoreDest); err != nil {
		return nil, fmt.Errorf("restore: copy store: %w", err)
	}
	result.FilesRestored++

	if p.ConfDest == "" {
		return result, nil
	}
	for name, entry := range result.Manifest.Files {
		if entry.Type != "conf" {
			continue
		}
		src := filepath.Join(tmpDir, filepath.FromSlash(name))
		same, exists, err := sameContent(src, p.ConfDest)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("compare %s: %v", name, err))
			continue
		}
		switch {
		case same:
		case exists && !p.OverwriteConf:
			result.Warnings = append(result.Warnings, fmt.Sprintf("kept current config %s", p.ConfDest))
		default:
			if err := os.MkdirAll(filepath.Dir(p.ConfDest), 0755); err != nil {
				return nil, fmt.Errorf("restore: create conf dir: %w", err)
			}
			if err := copyFile(src, p.ConfDest); err != nil {
				return nil, fmt.Errorf("restore: copy conf: %w", err)
			}
			result.FilesRestored++
		}
	}
	return result, nil
}

// extract unpacks a .tar.gz into destDir.
func extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid archive entry: %s", hdr.Name)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}

func validateChecksum(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}

func sameContent(src, dst string) (same, exists bool, err error) {
	want, err := os.ReadFile(dst)
	if errors.Is(err, os.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, true, err
	}
	got, err := os.ReadFile(src)
	if err != nil {
		return false, true, err
	}
	return bytes.Equal(got, want), true, nil
}
