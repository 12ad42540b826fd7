package sync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is the kind of change an envelope describes.
type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
)

// ParseAction returns the canonical Action for s, ignoring case.
func ParseAction(s string) (Action, error) {
	for _, a := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown sync action %q", s)
}

// ChangeEnvelope is the wire unit of the protocol: one entity's create,
// update or delete.
//
// ConcurrencyToken is the record's row version as last seen by the sender.
// Payload is the JSON-encoded entity; it is nil for deletes.
type ChangeEnvelope struct {
	EntityID         string    `json:"Id"`
	TableName        string    `json:"TableName"`
	Action           Action    `json:"SyncAction"`
	Timestamp        time.Time `json:"Timestamp"`
	ConcurrencyToken *string   `json:"RowVersion"`
	Payload          *string   `json:"Data"`
}

// Token returns the concurrency token or "" when absent.
func (e *ChangeEnvelope) Token() string {
	if e.ConcurrencyToken == nil {
		return ""
	}
	return *e.ConcurrencyToken
}

// StringPtr returns a pointer to s, for filling optional envelope fields.
func StringPtr(s string) *string {
	return &s
}

// ItemError records why one envelope in a batch was not applied.
type ItemError struct {
	EntityID string    `json:"Id"`
	Kind     ErrorKind `json:"Kind"`
	Reason   string    `json:"Reason"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.EntityID, e.Kind, e.Reason)
}

// ApplyResult aggregates the outcome of a push batch.
type ApplyResult struct {
	CreatedCount  int         `json:"CreatedCount"`
	UpdatedCount  int         `json:"UpdatedCount"`
	DeletedCount  int         `json:"DeletedCount"`
	ErrorCount    int         `json:"ErrorCount"`
	ConflictCount int         `json:"ConflictCount"`
	PerItemErrors []ItemError `json:"PerItemErrors"`
}

// Applied returns the number of envelopes that changed (or confirmed) state.
func (r *ApplyResult) Applied() int {
	return r.CreatedCount + r.UpdatedCount + r.DeletedCount
}

// Merge adds the counts and errors of other into r.
func (r *ApplyResult) Merge(other *ApplyResult) {
	if other == nil {
		return
	}
	r.CreatedCount += other.CreatedCount
	r.UpdatedCount += other.UpdatedCount
	r.DeletedCount += other.DeletedCount
	r.ErrorCount += other.ErrorCount
	r.ConflictCount += other.ConflictCount
	r.PerItemErrors = append(r.PerItemErrors, other.PerItemErrors...)
}

func (r *ApplyResult) addError(ie ItemError) {
	r.ErrorCount++
	if ie.Kind == KindConflict {
		r.ConflictCount++
	}
	r.PerItemErrors = append(r.PerItemErrors, ie)
}

// DecodeBatch parses a push body. The body must be a JSON array; elements
// that do not decode as envelopes are returned as KindInvalidPayload item
// errors so the rest of the batch can still be applied.
func DecodeBatch(data []byte) ([]ChangeEnvelope, []ItemError, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("batch must be a JSON array of envelopes: %w", err)
	}

	batch := make([]ChangeEnvelope, 0, len(raw))
	var bad []ItemError
	for i, msg := range raw {
		var env ChangeEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			var head struct {
				ID string `json:"Id"`
			}
			_ = json.Unmarshal(msg, &head)
			bad = append(bad, ItemError{
				EntityID: head.ID,
				Kind:     KindInvalidPayload,
				Reason:   fmt.Sprintf("envelope %d: %v", i, err),
			})
			continue
		}
		batch = append(batch, env)
	}
	return batch, bad, nil
}

// WithItemErrors folds errors found before apply (see DecodeBatch) into r.
func (r *ApplyResult) WithItemErrors(errs []ItemError) *ApplyResult {
	for _, ie := range errs {
		r.addError(ie)
	}
	return r
}
