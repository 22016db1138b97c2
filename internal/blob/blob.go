// Package blob offloads attachment payloads out of the record store.
package blob

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/core"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key to bytes store.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// Key is the object key of a project's attachment slot.
func Key(projectID string, slot core.AttachmentSlot) string {
	return fmt.Sprintf("attachments/%s/%s", projectID, slot)
}
