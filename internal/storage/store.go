package storage

import "context"

// ObjectStore publishes pipeline artifacts to durable storage and returns a
// URL reachable by API consumers.
type ObjectStore interface {
	// PutFile uploads the file at localPath under the given key and returns
	// the public URL of the stored object.
	PutFile(ctx context.Context, key, localPath, contentType string) (string, error)
}
