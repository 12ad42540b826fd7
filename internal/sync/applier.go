package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lexiflow/lexisync/internal/auth"
	"github.com/lexiflow/lexisync/internal/schema"
	"github.com/lexiflow/lexisync/internal/store"
)

// ConflictPolicy decides how Update envelopes treat the concurrency token.
type ConflictPolicy string

const (
	// PolicyReject applies an update only when the envelope's token equals
	// the stored row version. Mismatches become KindConflict item errors.
	PolicyReject ConflictPolicy = "reject"

	// PolicyLastWriteWins ignores the token and overwrites.
	PolicyLastWriteWins ConflictPolicy = "last-write-wins"
)

// ParseConflictPolicy parses a policy name. Empty means PolicyReject.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyReject):
		return PolicyReject, nil
	case string(PolicyLastWriteWins), "lww":
		return PolicyLastWriteWins, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// ApplierOptions configures an Applier.
type ApplierOptions struct {
	Policy ConflictPolicy

	// Workers > 1 applies envelopes for distinct entity ids in parallel.
	// Envelopes sharing an id always run in batch order.
	Workers int

	// Locks serializes writes to one id across concurrent batches. Share one
	// KeyedMutex between all appliers of a process. Nil creates a private one.
	Locks *KeyedMutex

	Logger *log.Logger
}

// Applier applies pushed envelopes to one entity type.
type Applier[T any, P schema.Record[T]] struct {
	table   string
	coll    store.Collection[T, P]
	policy  ConflictPolicy
	workers int
	locks   *KeyedMutex
	logger  *log.Logger
}

// NewApplier creates an Applier for table.
func NewApplier[T any, P schema.Record[T]](table string, coll store.Collection[T, P], opts ApplierOptions) *Applier[T, P] {
	if opts.Policy == "" {
		opts.Policy = PolicyReject
	}
	if opts.Locks == nil {
		opts.Locks = NewKeyedMutex()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Applier[T, P]{
		table:   table,
		coll:    coll,
		policy:  opts.Policy,
		workers: opts.Workers,
		locks:   opts.Locks,
		logger:  opts.Logger,
	}
}

type outcomeKind int

const (
	outcomeFailed outcomeKind = iota
	outcomeCreated
	outcomeUpdated
	outcomeDeleted
)

type outcome struct {
	kind outcomeKind
	err  ItemError
}

func failed(id string, kind ErrorKind, format string, args ...interface{}) outcome {
	return outcome{kind: outcomeFailed, err: ItemError{EntityID: id, Kind: kind, Reason: fmt.Sprintf(format, args...)}}
}

// ApplyChanges implements ChangeApplier.
func (a *Applier[T, P]) ApplyChanges(ctx context.Context, batch []ChangeEnvelope, principal *auth.Principal) (*ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actor := principal.Actor()
	outcomes := make([]outcome, len(batch))

	if a.workers <= 1 || len(batch) < 2 {
		for i := range batch {
			outcomes[i] = a.applyOne(ctx, batch[i], actor)
		}
	} else {
		// Group indices by id so one id never runs on two goroutines.
		var order []string
		groups := make(map[string][]int)
		for i, env := range batch {
			if _, ok := groups[env.EntityID]; !ok {
				order = append(order, env.EntityID)
			}
			groups[env.EntityID] = append(groups[env.EntityID], i)
		}

		var g errgroup.Group
		g.SetLimit(a.workers)
		for _, id := range order {
			indices := groups[id]
			g.Go(func() error {
				for _, i := range indices {
					outcomes[i] = a.applyOne(ctx, batch[i], actor)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &ApplyResult{PerItemErrors: []ItemError{}}
	for _, o := range outcomes {
		switch o.kind {
		case outcomeCreated:
			result.CreatedCount++
		case outcomeUpdated:
			result.UpdatedCount++
		case outcomeDeleted:
			result.DeletedCount++
		default:
			result.addError(o.err)
		}
	}
	return result, nil
}

// applyOne is the fault boundary of a single envelope.
func (a *Applier[T, P]) applyOne(ctx context.Context, env ChangeEnvelope, actor string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(env.EntityID, KindStoreError, "panic: %v", r)
		}
		if out.kind == outcomeFailed {
			a.logger.Printf("WARNING: Failed to apply %s %s %s: %s: %s",
				env.Action, a.table, env.EntityID, out.err.Kind, out.err.Reason)
		}
	}()

	if env.EntityID == "" {
		return failed("", KindInvalidPayload, "envelope has no Id")
	}
	if env.TableName != "" && !strings.EqualFold(env.TableName, a.table) {
		return failed(env.EntityID, KindInvalidPayload, "envelope for table %s pushed to %s", env.TableName, a.table)
	}
	action, err := ParseAction(string(env.Action))
	if err != nil {
		return failed(env.EntityID, KindInvalidPayload, "%v", err)
	}

	unlock := a.locks.Lock(a.table + "\x00" + env.EntityID)
	defer unlock()

	if action == ActionDelete {
		return a.remove(ctx, env, actor)
	}
	return a.upsert(ctx, env, actor)
}

func (a *Applier[T, P]) upsert(ctx context.Context, env ChangeEnvelope, actor string) outcome {
	id := env.EntityID

	if env.Payload == nil || *env.Payload == "" {
		return failed(id, KindInvalidPayload, "%s requires Data", env.Action)
	}
	rec := P(new(T))
	if err := json.Unmarshal([]byte(*env.Payload), rec); err != nil {
		return failed(id, KindInvalidPayload, "failed to decode Data: %v", err)
	}
	// Metadata is owned by the store; only the id comes from the envelope.
	*rec.Metadata() = schema.Meta{ID: id}
	if err := rec.Validate(); err != nil {
		return failed(id, KindInvalidPayload, "invalid %s: %v", a.table, err)
	}

	existing, err := a.coll.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return a.insert(ctx, rec, actor)
	case err != nil:
		return failed(id, KindStoreError, "%v", err)
	}

	if existing.Metadata().IsDeleted {
		return failed(id, KindConflict, "record is deleted")
	}

	expected := ""
	if a.policy == PolicyReject {
		expected = env.Token()
		if expected == "" {
			return failed(id, KindConflict, "RowVersion is required to update an existing record (current %s)",
				existing.Metadata().RowVersion)
		}
	}

	err = a.coll.Update(ctx, rec, actor, expected)
	switch {
	case err == nil:
		return outcome{kind: outcomeUpdated}
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrDeleted):
		return failed(id, KindConflict, "%v", err)
	case errors.Is(err, store.ErrNotFound):
		return failed(id, KindNotFound, "%v", err)
	default:
		return failed(id, KindStoreError, "%v", err)
	}
}

func (a *Applier[T, P]) insert(ctx context.Context, rec P, actor string) outcome {
	id := rec.Metadata().ID

	err := a.coll.Insert(ctx, rec, actor)
	switch {
	case err == nil:
		return outcome{kind: outcomeCreated}
	case errors.Is(err, store.ErrAlreadyExists):
		return failed(id, KindConflict, "record was created concurrently")
	default:
		return failed(id, KindStoreError, "%v", err)
	}
}

func (a *Applier[T, P]) remove(ctx context.Context, env ChangeEnvelope, actor string) outcome {
	id := env.EntityID

	// An empty token deletes unconditionally under either policy.
	expected := ""
	if a.policy == PolicyReject {
		expected = env.Token()
	}

	err := a.coll.SoftDelete(ctx, id, actor, expected)
	switch {
	case err == nil, errors.Is(err, store.ErrDeleted):
		return outcome{kind: outcomeDeleted}
	case errors.Is(err, store.ErrNotFound):
		return failed(id, KindNotFound, "%v", err)
	case errors.Is(err, store.ErrVersionConflict):
		return failed(id, KindConflict, "%v", err)
	default:
		return failed(id, KindStoreError, "%v", err)
	}
}
