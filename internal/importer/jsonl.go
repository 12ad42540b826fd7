// Package importer loads JSONL exports into a lexisync table.
//
// Every line is one entity object. Lines become Create envelopes and are
// pushed in batches through anything that can push, normally a
// client.Client pointed at a running server.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// Pusher applies a batch to a table.
type Pusher interface {
	Push(ctx context.Context, table string, batch []lexisync.ChangeEnvelope) (*lexisync.ApplyResult, error)
}

// Options contains configuration for an import
type Options struct {
	Table     string // Target table, e.g. VocabularyItems
	BatchSize int    // Envelopes per push (default: 500)
	DryRun    bool   // Parse only, push nothing
	Logger    *log.Logger
}

// Result contains statistics about the import
type Result struct {
	Envelopes   int
	Batches     int
	GeneratedID int // Lines that had no Id and were given one
	Apply       lexisync.ApplyResult
}

// ReadJSONL parses r into Create envelopes for table. Blank lines are
// skipped. Lines without an "Id" get a fresh UUID.
func ReadJSONL(r io.Reader, table string) ([]lexisync.ChangeEnvelope, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		envs      []lexisync.ChangeEnvelope
		generated int
		lineNum   int
	)
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(line, &obj); err != nil {
			return nil, 0, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		var id string
		if raw, ok := obj["Id"]; ok {
			if err := json.Unmarshal(raw, &id); err != nil {
				return nil, 0, fmt.Errorf("invalid Id at line %d: %w", lineNum, err)
			}
		}
		if id == "" {
			id = uuid.NewString()
			generated++
		}

		envs = append(envs, lexisync.ChangeEnvelope{
			EntityID:  id,
			TableName: table,
			Action:    lexisync.ActionCreate,
			Payload:   lexisync.StringPtr(string(line)),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read line %d: %w", lineNum+1, err)
	}
	return envs, generated, nil
}

// ImportFile reads path and pushes its records.
func ImportFile(ctx context.Context, pusher Pusher, path string, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	return Import(ctx, pusher, f, opts)
}

// Import pushes the records in r in batches. Per-item failures are counted in
// the result; a failed push stops the import and returns what was applied so
// far together with the error.
func Import(ctx context.Context, pusher Pusher, r io.Reader, opts Options) (*Result, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[import] ", log.LstdFlags)
	}

	envs, generated, err := ReadJSONL(r, opts.Table)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Envelopes:   len(envs),
		GeneratedID: generated,
	}
	if opts.DryRun {
		opts.Logger.Printf("Dry run: %d %s records parsed, nothing pushed", len(envs), opts.Table)
		return result, nil
	}

	for start := 0; start < len(envs); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(envs) {
			end = len(envs)
		}

		applied, err := pusher.Push(ctx, opts.Table, envs[start:end])
		if err != nil {
			return result, fmt.Errorf("failed to push batch %d: %w", result.Batches+1, err)
		}
		result.Batches++
		result.Apply.Merge(applied)

		if applied.ErrorCount > 0 {
			opts.Logger.Printf("WARNING: batch %d: %d of %d records rejected", result.Batches, applied.ErrorCount, end-start)
		}
	}

	opts.Logger.Printf("Imported %d records into %s in %d batches (%d created, %d errors)",
		result.Apply.Applied(), opts.Table, result.Batches, result.Apply.CreatedCount, result.Apply.ErrorCount)
	return result, nil
}
