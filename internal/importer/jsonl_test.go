package importer

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// recordingPusher accepts every envelope with a non-empty payload.
type recordingPusher struct {
	batches [][]lexisync.ChangeEnvelope
	failOn  int
}

func (p *recordingPusher) Push(ctx context.Context, table string, batch []lexisync.ChangeEnvelope) (*lexisync.ApplyResult, error) {
	p.batches = append(p.batches, batch)
	if p.failOn > 0 && len(p.batches) == p.failOn {
		return nil, errors.New("connection reset")
	}

	result := &lexisync.ApplyResult{}
	for _, env := range batch {
		if strings.Contains(*env.Payload, `"Term":""`) {
			result.ErrorCount++
			result.PerItemErrors = append(result.PerItemErrors, lexisync.ItemError{
				EntityID: env.EntityID,
				Kind:     lexisync.KindInvalidPayload,
				Reason:   "term is required",
			})
			continue
		}
		result.CreatedCount++
	}
	return result, nil
}

var quiet = log.New(io.Discard, "", 0)

const sample = `{"Id":"v1","Term":"水","Reading":"みず"}

{"Term":"火","Reading":"ひ"}
{"Id":"v3","Term":""}
`

func TestReadJSONL(t *testing.T) {
	envs, generated, err := ReadJSONL(strings.NewReader(sample), "VocabularyItems")
	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, 1, generated)

	assert.Equal(t, "v1", envs[0].EntityID)
	assert.Equal(t, lexisync.ActionCreate, envs[0].Action)
	assert.Equal(t, "VocabularyItems", envs[0].TableName)
	assert.Equal(t, `{"Id":"v1","Term":"水","Reading":"みず"}`, *envs[0].Payload)

	_, err = uuid.Parse(envs[1].EntityID)
	assert.NoError(t, err, "generated id should be a UUID")
}

func TestReadJSONL_Invalid(t *testing.T) {
	_, _, err := ReadJSONL(strings.NewReader("{\"Id\":\"a\"}\nnot json\n"), "Categories")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, _, err = ReadJSONL(strings.NewReader(`{"Id":7}`), "Categories")
	assert.Error(t, err)
}

func TestImport_Batches(t *testing.T) {
	pusher := &recordingPusher{}

	result, err := Import(context.Background(), pusher, strings.NewReader(sample), Options{
		Table:     "VocabularyItems",
		BatchSize: 2,
		Logger:    quiet,
	})
	require.NoError(t, err)

	assert.Len(t, pusher.batches, 2)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 3, result.Envelopes)
	assert.Equal(t, 2, result.Apply.CreatedCount)
	assert.Equal(t, 1, result.Apply.ErrorCount)
	require.Len(t, result.Apply.PerItemErrors, 1)
	assert.Equal(t, "v3", result.Apply.PerItemErrors[0].EntityID)
}

func TestImport_DryRun(t *testing.T) {
	pusher := &recordingPusher{}

	result, err := Import(context.Background(), pusher, strings.NewReader(sample), Options{
		Table:  "VocabularyItems",
		DryRun: true,
		Logger: quiet,
	})
	require.NoError(t, err)
	assert.Empty(t, pusher.batches)
	assert.Equal(t, 3, result.Envelopes)
}

func TestImport_PushFailure(t *testing.T) {
	pusher := &recordingPusher{failOn: 2}

	result, err := Import(context.Background(), pusher, strings.NewReader(sample), Options{
		Table:     "VocabularyItems",
		BatchSize: 2,
		Logger:    quiet,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2")
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 2, result.Apply.CreatedCount)
}

func TestImport_RequiresTable(t *testing.T) {
	_, err := Import(context.Background(), &recordingPusher{}, strings.NewReader(sample), Options{Logger: quiet})
	assert.Error(t, err)
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0600))

	result, err := ImportFile(context.Background(), &recordingPusher{}, path, Options{Table: "VocabularyItems", Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Batches)

	_, err = ImportFile(context.Background(), &recordingPusher{}, filepath.Join(t.TempDir(), "missing.jsonl"), Options{Table: "VocabularyItems"})
	assert.Error(t, err)
}
