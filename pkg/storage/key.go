package storage

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// NewKey returns a collision-resistant object key that keeps the lowercase
// extension of the uploaded filename.
func NewKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	return uuid.NewString() + ext
}
