// Package archive expands uploaded shapefile archives and packs export
// results into zip deliverables.
//
// Zip content is handled with the standard library so every entry path
// can be validated before extraction. Other container formats (tar.gz,
// rar, 7z) are delegated to the archiver library.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v3"
)

// ErrBadArchive marks archives that are malformed, unsafe, or of an
// unsupported format. These are caller mistakes, not internal failures.
var ErrBadArchive = errors.New("bad archive")

// supportedExts lists the container formats Extract accepts, with
// multi-dot extensions first so they win the suffix match.
var supportedExts = []string{".tar.gz", ".tgz", ".zip", ".rar", ".7z"}

// Ext returns the archive extension of name (".tar.gz" aware), or ""
// when name has no supported archive extension.
func Ext(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range supportedExts {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}

// Supported reports whether name carries a supported archive extension.
func Supported(name string) bool {
	return Ext(name) != ""
}

// Extract expands the archive at src into destDir.
//
// Malformed containers, unsupported formats, and entries that would
// escape destDir all return errors wrapping ErrBadArchive.
func Extract(src, destDir string) error {
	switch Ext(src) {
	case ".zip":
		return extractZip(src, destDir)
	case "":
		return fmt.Errorf("%w: unsupported format %q", ErrBadArchive, filepath.Ext(src))
	default:
		if err := archiver.Unarchive(src, destDir); err != nil {
			return fmt.Errorf("%w: expand %s: %v", ErrBadArchive, filepath.Base(src), err)
		}
		return nil
	}
}

func extractZip(src, destDir string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: open zip: %v", ErrBadArchive, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := extractZipEntry(file, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(zf *zip.File, dest string) error {
	fpath := filepath.Join(dest, zf.Name)

	// Reject entries that resolve outside the destination directory.
	if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: illegal entry path %q", ErrBadArchive, zf.Name)
	}

	if zf.FileInfo().IsDir() {
		return os.MkdirAll(fpath, 0o700)
	}

	if err := os.MkdirAll(filepath.Dir(fpath), 0o700); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
	if err != nil {
		return fmt.Errorf("create entry file: %w", err)
	}
	rc, err := zf.Open()
	if err != nil {
		outFile.Close()
		return fmt.Errorf("%w: read entry %q: %v", ErrBadArchive, zf.Name, err)
	}
	_, err = io.Copy(outFile, rc)
	rc.Close()
	outFile.Close()
	if err != nil {
		return fmt.Errorf("write entry %q: %w", zf.Name, err)
	}
	return nil
}

// Pack walks srcDir and writes all regular files into a single zip at
// outPath, preserving paths relative to srcDir.
func Pack(srcDir, outPath string) error {
	zipFile, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// Skip the output zip itself in case it lives under srcDir
		if path == outPath {
			return nil
		}
		// Skip directories since they are implicitly added by including their files
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		entry, err := zipWriter.Create(relPath)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(entry, file)
		return err
	})
}
