package analysis

import (
	"context"
	"fmt"
	"time"
)

const DefaultUpsertAttempts = 3

// MergeUpsert does read-merge-write against s, restarting from a fresh read
// whenever the optimistic check fails. Only the fields in cs are changed.
func MergeUpsert(ctx context.Context, s VersionedStore, id string, cs ChangeSet, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultUpsertAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur, err := s.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}

		now := time.Now().UTC()
		if cur == nil {
			rec := &Record{ID: id, Components: []string{}, CreatedAt: now, UpdatedAt: now, Version: 1}
			if err := rec.Apply(cs); err != nil {
				return err
			}
			conflict, err := s.Insert(ctx, rec)
			if err != nil {
				return fmt.Errorf("insert %s: %w", id, err)
			}
			if !conflict {
				return nil
			}
			conflictsObserved(id)
			continue
		}

		expected := cur.Version
		if err := cur.Apply(cs); err != nil {
			return err
		}
		cur.Version = expected + 1
		cur.UpdatedAt = now
		ok, err := s.Update(ctx, cur, expected)
		if err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		if ok {
			return nil
		}
		conflictsObserved(id)
	}
	return fmt.Errorf("%w: %s", ErrConcurrentUpdate, id)
}

// ConflictHook is invoked on every lost optimistic check; metrics wires into it.
var ConflictHook func(id string)

func conflictsObserved(id string) {
	if ConflictHook != nil {
		ConflictHook(id)
	}
}
