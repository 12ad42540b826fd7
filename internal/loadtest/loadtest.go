// Package loadtest drives concurrent writers at a lexisync table.
//
// Writers share a small pool of entity ids, so under the reject policy most
// of the interesting outcomes are conflicts: a writer pushes an Update with
// the row version it last saw, and either wins or refreshes and retries on
// its next turn. The run reports push latency and outcome counts.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/lexiflow/lexisync/internal/auth"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// Target is a sync endpoint. client.Client satisfies it; EngineTarget adapts
// an in-process engine.
type Target interface {
	Pull(ctx context.Context, table string, since *time.Time) ([]lexisync.ChangeEnvelope, error)
	Push(ctx context.Context, table string, batch []lexisync.ChangeEnvelope) (*lexisync.ApplyResult, error)
}

// EngineTarget calls an engine directly as Principal.
type EngineTarget struct {
	Engine    *lexisync.Engine
	Principal *auth.Principal
}

// Pull implements Target.
func (t EngineTarget) Pull(ctx context.Context, table string, since *time.Time) ([]lexisync.ChangeEnvelope, error) {
	return t.Engine.Pull(ctx, table, since, t.Principal)
}

// Push implements Target.
func (t EngineTarget) Push(ctx context.Context, table string, batch []lexisync.ChangeEnvelope) (*lexisync.ApplyResult, error) {
	return t.Engine.Push(ctx, table, batch, t.Principal)
}

// Options configures a run.
type Options struct {
	Table           string
	Writers         int // Concurrent writers (default: 10)
	PushesPerWriter int // Pushes each writer makes (default: 20)
	Keys            int // Shared entity ids (default: 5)

	// Payload returns the Data of the n-th write to id. The default fits
	// Categories.
	Payload func(id string, n int) string

	// Seed makes key selection reproducible (default: 42).
	Seed int64

	Logger *log.Logger
}

// LatencyStats captures push latency.
type LatencyStats struct {
	Min         time.Duration
	Max         time.Duration
	Mean        time.Duration
	P50         time.Duration // Median
	P95         time.Duration
	P99         time.Duration
	TotalPushes int
	Durations   []time.Duration
}

// Report is the outcome of a run.
type Report struct {
	Latency   *LatencyStats
	Applied   int // Updates that won
	Conflicts int // Updates rejected on row version
	Errors    int // Other per-item failures and failed pushes
	Refreshes int // Snapshot pulls after a conflict
	Elapsed   time.Duration
}

func defaultPayload(id string, n int) string {
	return fmt.Sprintf(`{"Name":"loadtest %s #%d"}`, id, n)
}

// Run seeds Keys records, then starts Writers concurrent writers.
func Run(ctx context.Context, target Target, opts Options) (*Report, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if opts.Writers <= 0 {
		opts.Writers = 10
	}
	if opts.PushesPerWriter <= 0 {
		opts.PushesPerWriter = 20
	}
	if opts.Keys <= 0 {
		opts.Keys = 5
	}
	if opts.Payload == nil {
		opts.Payload = defaultPayload
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[loadtest] ", log.LstdFlags)
	}

	keys, err := seed(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	tokens, err := snapshotTokens(ctx, target, opts.Table)
	if err != nil {
		return nil, err
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		allDurations []time.Duration
	)
	report := &Report{}
	start := time.Now()

	for i := 0; i < opts.Writers; i++ {
		wg.Add(1)
		go func(writerID int) {
			defer wg.Done()

			w := &writer{
				id:     writerID,
				target: target,
				opts:   opts,
				keys:   keys,
				tokens: copyTokens(tokens),
				rng:    rand.New(rand.NewSource(opts.Seed + int64(writerID))),
			}
			durations, counts := w.run(ctx)

			mu.Lock()
			allDurations = append(allDurations, durations...)
			report.Applied += counts.Applied
			report.Conflicts += counts.Conflicts
			report.Errors += counts.Errors
			report.Refreshes += counts.Refreshes
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	report.Latency = computeLatencyStats(allDurations)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	opts.Logger.Printf("%d writers x %d pushes on %d %s keys: %d applied, %d conflicts, %d errors in %v",
		opts.Writers, opts.PushesPerWriter, opts.Keys, opts.Table,
		report.Applied, report.Conflicts, report.Errors, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// seed creates the shared records. Ids that already exist are reused.
func seed(ctx context.Context, target Target, opts Options) ([]string, error) {
	keys := make([]string, opts.Keys)
	batch := make([]lexisync.ChangeEnvelope, opts.Keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("loadtest-%03d", i)
		batch[i] = lexisync.ChangeEnvelope{
			EntityID: keys[i],
			Action:   lexisync.ActionCreate,
			Payload:  lexisync.StringPtr(opts.Payload(keys[i], 0)),
		}
	}

	result, err := target.Push(ctx, opts.Table, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to seed %s: %w", opts.Table, err)
	}
	for _, ie := range result.PerItemErrors {
		if ie.Kind != lexisync.KindConflict {
			return nil, fmt.Errorf("failed to seed %s: %w", opts.Table, ie)
		}
	}
	return keys, nil
}

func snapshotTokens(ctx context.Context, target Target, table string) (map[string]string, error) {
	envs, err := target.Pull(ctx, table, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", table, err)
	}
	tokens := make(map[string]string, len(envs))
	for _, env := range envs {
		tokens[env.EntityID] = env.Token()
	}
	return tokens, nil
}

func copyTokens(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type writer struct {
	id     int
	target Target
	opts   Options
	keys   []string
	tokens map[string]string
	rng    *rand.Rand
}

func (w *writer) run(ctx context.Context) ([]time.Duration, Report) {
	var counts Report
	durations := make([]time.Duration, 0, w.opts.PushesPerWriter)

	for n := 1; n <= w.opts.PushesPerWriter; n++ {
		if ctx.Err() != nil {
			break
		}

		id := w.keys[w.rng.Intn(len(w.keys))]
		env := lexisync.ChangeEnvelope{
			EntityID:         id,
			Action:           lexisync.ActionUpdate,
			ConcurrencyToken: lexisync.StringPtr(w.tokens[id]),
			Payload:          lexisync.StringPtr(w.opts.Payload(id, w.id*w.opts.PushesPerWriter+n)),
		}

		start := time.Now()
		result, err := w.target.Push(ctx, w.opts.Table, []lexisync.ChangeEnvelope{env})
		durations = append(durations, time.Since(start))

		switch {
		case err != nil:
			counts.Errors++
			w.opts.Logger.Printf("WARNING: writer %d push %d failed: %v", w.id, n, err)
		case result.ConflictCount > 0:
			counts.Conflicts++
			tokens, err := snapshotTokens(ctx, w.target, w.opts.Table)
			if err != nil {
				counts.Errors++
				continue
			}
			w.tokens = tokens
			counts.Refreshes++
		case result.ErrorCount > 0:
			counts.Errors++
		default:
			counts.Applied += result.Applied()
			// A stale token only costs a conflict and a refresh next time.
			if fresh, err := snapshotTokens(ctx, w.target, w.opts.Table); err == nil {
				w.tokens = fresh
			}
		}
	}
	return durations, counts
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        sum / time.Duration(len(durations)),
		P50:         sorted[len(sorted)*50/100],
		P95:         sorted[len(sorted)*95/100],
		P99:         sorted[len(sorted)*99/100],
		TotalPushes: len(durations),
		Durations:   sorted,
	}
}

// Print formats the report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Outcomes:\n")
	fmt.Fprintf(w, "  Applied:       %d\n", r.Applied)
	fmt.Fprintf(w, "  Conflicts:     %d\n", r.Conflicts)
	fmt.Fprintf(w, "  Errors:        %d\n", r.Errors)
	fmt.Fprintf(w, "  Refreshes:     %d\n", r.Refreshes)
	fmt.Fprintf(w, "  Elapsed:       %v\n", r.Elapsed.Round(time.Millisecond))
	if r.Latency == nil {
		return
	}
	fmt.Fprintf(w, "Push Latency:\n")
	fmt.Fprintf(w, "  Total Pushes:  %d\n", r.Latency.TotalPushes)
	fmt.Fprintf(w, "  Min:           %v\n", r.Latency.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", r.Latency.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", r.Latency.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", r.Latency.P95)
	fmt.Fprintf(w, "  P99:           %v\n", r.Latency.P99)
	fmt.Fprintf(w, "  Max:           %v\n", r.Latency.Max)
}
