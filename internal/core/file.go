package core

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a proof file picked by the employee.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var allowedProofExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// ValidateProof checks the extension against png/jpg/jpeg and, when a MIME type is
// declared, that it is an accepted image type.
func ValidateProof(f *File) error {
	if f == nil || strings.TrimSpace(f.Name) == "" {
		return NewValidationError("file", "justificatif requis")
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), "."))
	if _, ok := allowedProofExtensions[ext]; !ok {
		return NewValidationError("file", "Seuls les fichiers jpg, jpeg et png sont acceptés")
	}
	if f.ContentType != "" && f.ContentType != "application/octet-stream" &&
		!mimetype.EqualsAny(f.ContentType, "image/png", "image/jpeg", "image/jpg") {
		return NewValidationError("file", "Seuls les fichiers jpg, jpeg et png sont acceptés")
	}
	return nil
}

// DetectContentType returns the declared type, or sniffs the content when none is set.
func (f *File) DetectContentType() string {
	if f.ContentType != "" {
		return f.ContentType
	}
	return mimetype.Detect(f.Data).String()
}
