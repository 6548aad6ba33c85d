// Package assets defines the external blob-storage collaborator. Given
// bytes and a name it returns a durable URL; nothing else about the
// storage backend leaks into the core.
package assets

import "context"

// Store uploads a named blob and returns its durable public URL.
type Store interface {
	Upload(ctx context.Context, name string, content []byte) (string, error)
}

// Noop discards uploads and returns a deterministic placeholder URL.
// Used in tests and when no storage backend is configured.
type Noop struct{}

func (Noop) Upload(_ context.Context, name string, _ []byte) (string, error) {
	return "noop://" + name, nil
}
