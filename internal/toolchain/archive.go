package toolchain

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// extractArchive unpacks a zip or tar.xz archive into dir. Some providers
// serve zips without a .zip suffix, so zip is always tried first.
func extractArchive(archivePath, dir string) error {
	err := extractZip(archivePath, dir)
	if err == nil {
		return nil
	}
	if !errors.Is(err, zip.ErrFormat) {
		return err
	}
	return extractTarXZ(archivePath, dir)
}

func extractZip(zipPath, extractDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			target, err := safeTarget(extractDir, file.Name)
			if err != nil {
				return err
			}
			if target != "" {
				if err := os.MkdirAll(target, 0o755); err != nil {
					return err
				}
			}
			continue
		}
		src, err := file.Open()
		if err != nil {
			return err
		}
		err = writeEntry(extractDir, file.Name, file.Mode(), src)
		closeErr := src.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

func extractTarXZ(archivePath, extractDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	xzReader, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("open xz stream: %w", err)
	}
	tr := tar.NewReader(xzReader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			target, err := safeTarget(extractDir, header.Name)
			if err != nil {
				return err
			}
			if target != "" {
				if err := os.MkdirAll(target, 0o755); err != nil {
					return err
				}
			}
		case tar.TypeReg:
			if err := writeEntry(extractDir, header.Name, fs.FileMode(header.Mode).Perm(), tr); err != nil {
				return err
			}
		}
	}
}

func writeEntry(baseDir, name string, mode fs.FileMode, src io.Reader) error {
	target, err := safeTarget(baseDir, name)
	if err != nil {
		return err
	}
	if target == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// safeTarget resolves name inside baseDir and rejects entries escaping it.
// An empty target means the entry names baseDir itself.
func safeTarget(baseDir, name string) (string, error) {
	cleanName := filepath.Clean(filepath.FromSlash(name))
	if cleanName == "." || cleanName == "" {
		return "", nil
	}
	target := filepath.Join(baseDir, cleanName)
	if !isWithinBaseDir(baseDir, target) {
		return "", fmt.Errorf("archive contains invalid path: %s", name)
	}
	return target, nil
}

func isWithinBaseDir(baseDir string, targetPath string) bool {
	relative, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(targetPath))
	if err != nil {
		return false
	}
	return relative == "." || (relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator)))
}

// findFile returns the first regular file named name below root.
func findFile(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(d.Name(), name) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%s not found in %s", name, root)
	}
	return found, nil
}
