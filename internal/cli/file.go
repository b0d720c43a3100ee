package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"campusauth/internal/verification"
)

// LoadIDFile reads an ID photo from disk. The type is sniffed from the
// content, not the extension, and size and type are checked before the
// file is read in full.
func LoadIDFile(path string) (verification.File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return verification.File{}, fmt.Errorf("open ID photo: %w", err)
	}
	if fi.IsDir() {
		return verification.File{}, fmt.Errorf("open ID photo: %s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return verification.File{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	if err := verification.ValidateImage(mt.String(), int(fi.Size())); err != nil {
		return verification.File{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return verification.File{}, fmt.Errorf("read ID photo: %w", err)
	}
	return verification.File{Name: filepath.Base(path), MimeType: mt.String(), Data: data}, nil
}
