// Package intake unpacks résumé archives and finds the documents in them.
package intake

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnsafePath is returned for archive entries that would land outside
	// the extraction directory.
	ErrUnsafePath = errors.New("archive entry escapes destination")
	// ErrNoDocuments is returned when an archive holds no supported document.
	ErrNoDocuments = errors.New("no documents found")
)

// DefaultExtensions are the document types picked up when none are configured.
var DefaultExtensions = []string{".pdf", ".docx", ".txt", ".html", ".htm"}

// macOS archivers add resource forks under this directory.
const resourceForkDir = "__MACOSX"

// ExtractArchive unpacks the zip file at zipPath into dest.
func ExtractArchive(zipPath, dest string) error {
	reader, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		reader.Close()
		return ErrUnsafePath
	}
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, file := range reader.File {
		if err := extractFile(file, root); err != nil {
			return fmt.Errorf("extract %q: %w", file.Name, err)
		}
	}

	return nil
}

func extractFile(file *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(file.Name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return ErrUnsafePath
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// FindDocuments walks root recursively and returns files whose extension is
// one of extensions (case-insensitive), sorted by path.
func FindDocuments(root string, extensions []string) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == resourceForkDir {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(found)
	return found, nil
}

// ExtractAndFind unpacks an archive and lists the documents it contained.
func ExtractAndFind(zipPath, dest string, extensions []string) ([]string, error) {
	if err := ExtractArchive(zipPath, dest); err != nil {
		return nil, err
	}

	docs, err := FindDocuments(dest, extensions)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

// Cleanup removes dir and everything below it, returning the number of bytes
// freed. A missing directory is not an error.
func Cleanup(dir string) (int64, error) {
	size, err := DirSize(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("remove %s: %w", dir, err)
	}
	return size, nil
}

// DirSize sums the sizes of the regular files below dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
