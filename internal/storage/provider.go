// Package storage defines the capture directory abstraction.
package storage

import "github.com/starford/framegrab/internal/models"

// Provider is the interface for capture directory operations.
type Provider interface {
	// Root returns the absolute directory the provider is rooted at.
	Root() string
	// List returns every .png file under dir (relative to the root).
	List(dir string) ([]models.FrameFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
