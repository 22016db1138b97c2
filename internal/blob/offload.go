package blob

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

// Offload moves an inline payload into s and leaves only its key on the
// attachment. Attachments already offloaded are left alone.
func Offload(ctx context.Context, s Store, projectID string, slot core.AttachmentSlot, a *core.Attachment) error {
	if s == nil || a == nil || len(a.Data) == 0 {
		return nil
	}
	key := Key(projectID, slot)
	if err := s.Put(ctx, key, a.Type, a.Data); err != nil {
		return err
	}
	a.Key = key
	a.Data = nil
	return nil
}

// Hydrate returns a copy of a with its payload loaded from s when offloaded.
func Hydrate(ctx context.Context, s Store, a *core.Attachment) (*core.Attachment, error) {
	if a == nil || !a.Offloaded() {
		return a, nil
	}
	if s == nil {
		return nil, fmt.Errorf("attachment %s is offloaded but no blob store is configured", a.Key)
	}
	data, _, err := s.Get(ctx, a.Key)
	if err != nil {
		return nil, err
	}
	out := *a
	out.Data = data
	return &out, nil
}
