package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lexiflow/lexisync/internal/auth"
)

// Config configures an Engine.
type Config struct {
	Registry  *Registry
	Authority *Authority
	Observer  Observer
	Logger    *log.Logger
}

// DefaultConfig returns a Config with an empty registry and a system-clock
// authority.
func DefaultConfig() Config {
	return Config{
		Registry:  NewRegistry(),
		Authority: NewAuthority(),
	}
}

// Engine is the entry point for pull, push and checkpoint requests.
type Engine struct {
	registry  *Registry
	authority *Authority
	observer  Observer
	logger    *log.Logger
}

// New creates an Engine. Missing fields are filled from DefaultConfig.
func New(cfg Config) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Authority == nil {
		cfg.Authority = NewAuthority()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		registry:  cfg.Registry,
		authority: cfg.Authority,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}
}

// Registry returns the engine's table registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Checkpoint returns the authority's current watermark.
func (e *Engine) Checkpoint() time.Time {
	return e.authority.Checkpoint()
}

// Authorize resolves table and runs the role gate for p. Handlers call it
// before reading any request input.
func (e *Engine) Authorize(table string, p *auth.Principal) (Table, error) {
	t, err := e.registry.Resolve(table)
	if err != nil {
		return Table{}, err
	}
	if err := Authorize(p, t); err != nil {
		e.logger.Printf("Denied %s on %s: %v", p.Actor(), t.Name, err)
		return Table{}, err
	}
	return t, nil
}

// Pull returns the changes of table since the checkpoint (nil for a snapshot).
func (e *Engine) Pull(ctx context.Context, table string, since *time.Time, p *auth.Principal) ([]ChangeEnvelope, error) {
	t, err := e.Authorize(table, p)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	envs, err := t.Reader.ReadChanges(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", t.Name, err)
	}

	e.observer.PullCompleted(PullEvent{
		Table:     t.Name,
		Principal: p.Actor(),
		Since:     since,
		Count:     len(envs),
		Duration:  time.Since(start),
	})
	return envs, nil
}

// Push applies batch to table.
func (e *Engine) Push(ctx context.Context, table string, batch []ChangeEnvelope, p *auth.Principal) (*ApplyResult, error) {
	return e.PushDecoded(ctx, table, batch, nil, p)
}

// PushDecoded applies batch to table and counts rejected, the elements that
// failed to decode (see DecodeBatch), as part of the same push.
func (e *Engine) PushDecoded(ctx context.Context, table string, batch []ChangeEnvelope, rejected []ItemError, p *auth.Principal) (*ApplyResult, error) {
	t, err := e.Authorize(table, p)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := t.Applier.ApplyChanges(ctx, batch, p)
	if err != nil {
		return nil, fmt.Errorf("failed to push %s: %w", t.Name, err)
	}
	result.WithItemErrors(rejected)
	size := len(batch) + len(rejected)

	e.logger.Printf("Applied %d envelopes to %s for %s: created=%d updated=%d deleted=%d errors=%d (conflicts=%d)",
		size, t.Name, p.Actor(), result.CreatedCount, result.UpdatedCount,
		result.DeletedCount, result.ErrorCount, result.ConflictCount)

	e.observer.PushCompleted(PushEvent{
		Table:     t.Name,
		Principal: p.Actor(),
		BatchSize: size,
		Result:    *result,
		Duration:  time.Since(start),
	})
	return result, nil
}
