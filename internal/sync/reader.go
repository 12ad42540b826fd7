package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexiflow/lexisync/internal/schema"
	"github.com/lexiflow/lexisync/internal/store"
)

// Reader is the change feed of one entity type.
type Reader[T any, P schema.Record[T]] struct {
	table string
	coll  store.Collection[T, P]
}

// NewReader creates a Reader reporting envelopes under table.
func NewReader[T any, P schema.Record[T]](table string, coll store.Collection[T, P]) *Reader[T, P] {
	return &Reader[T, P]{table: table, coll: coll}
}

// ReadChanges implements ChangeReader.
//
// With a checkpoint, soft-deleted records are reported as ActionDelete without
// payload, records created at or after the checkpoint as ActionCreate, and the
// rest as ActionUpdate. Every envelope's Timestamp is the record's latest
// change time, so it is >= since.
func (r *Reader[T, P]) ReadChanges(ctx context.Context, since *time.Time) ([]ChangeEnvelope, error) {
	if since == nil {
		recs, err := r.coll.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", r.table, err)
		}
		envs := make([]ChangeEnvelope, 0, len(recs))
		for _, rec := range recs {
			env, err := r.envelope(rec, ActionUpdate)
			if err != nil {
				return nil, err
			}
			envs = append(envs, env)
		}
		return envs, nil
	}

	recs, err := r.coll.ChangedSince(ctx, *since)
	if err != nil {
		return nil, fmt.Errorf("failed to read changes of %s: %w", r.table, err)
	}

	envs := make([]ChangeEnvelope, 0, len(recs))
	for _, rec := range recs {
		meta := rec.Metadata()

		action := ActionUpdate
		switch {
		case meta.IsDeleted:
			action = ActionDelete
		case !meta.CreatedAt.Before(*since):
			action = ActionCreate
		}

		env, err := r.envelope(rec, action)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func (r *Reader[T, P]) envelope(rec P, action Action) (ChangeEnvelope, error) {
	meta := rec.Metadata()
	env := ChangeEnvelope{
		EntityID:         meta.ID,
		TableName:        r.table,
		Action:           action,
		Timestamp:        meta.LastChanged(),
		ConcurrencyToken: StringPtr(meta.RowVersion),
	}
	if action == ActionDelete {
		return env, nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return ChangeEnvelope{}, fmt.Errorf("failed to encode %s %s: %w", r.table, meta.ID, err)
	}
	env.Payload = StringPtr(string(data))
	return env, nil
}
