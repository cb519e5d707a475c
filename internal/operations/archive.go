package operations

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ErrArchive indicates the backup directory could not be compressed.
// Non-fatal to a run: the mirrored directory and summary remain usable.
var ErrArchive = errors.New("archive failed")

// Archive compresses backupDir into a zip at archivePath, preserving paths
// relative to backupDir. A pre-existing archive for the same date is
// removed first so a day can be re-run safely.
func Archive(backupDir, archivePath string) error {
	info, err := os.Stat(backupDir)
	if err != nil {
		return fmt.Errorf("%w: source %q: %v", ErrArchive, backupDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source %q is not a directory", ErrArchive, backupDir)
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("%w: read %q: %v", ErrArchive, backupDir, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: source %q is empty", ErrArchive, backupDir)
	}

	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove stale archive %q: %v", ErrArchive, archivePath, err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", ErrArchive, archivePath, err)
	}

	if err := writeZip(out, backupDir); err != nil {
		out.Close()
		os.Remove(archivePath) // never leave a truncated archive behind
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("%w: close %q: %v", ErrArchive, archivePath, err)
	}
	return nil
}

func writeZip(out io.Writer, root string) error {
	zw := zip.NewWriter(out)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
			_, err := zw.CreateHeader(hdr)
			return err
		}
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
