package monitor

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// PullData describes a served pull
type PullData struct {
	Table      string     `json:"table"`
	Principal  string     `json:"principal"`
	Since      *time.Time `json:"since,omitempty"`
	Count      int        `json:"count"`
	DurationMs int64      `json:"duration_ms"`
}

// PushData describes an applied push batch
type PushData struct {
	Table      string `json:"table"`
	Principal  string `json:"principal"`
	BatchSize  int    `json:"batch_size"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Deleted    int    `json:"deleted"`
	Errors     int    `json:"errors"`
	Conflicts  int    `json:"conflicts"`
	DurationMs int64  `json:"duration_ms"`
}

// Totals accumulates activity since the handler was created
type Totals struct {
	Pulls             int `json:"pulls"`
	Pushes            int `json:"pushes"`
	EnvelopesServed   int `json:"envelopes_served"`
	EnvelopesApplied  int `json:"envelopes_applied"`
	EnvelopesRejected int `json:"envelopes_rejected"`
	Conflicts         int `json:"conflicts"`
}

// Handler turns engine events into hub broadcasts. It implements
// sync.Observer.
type Handler struct {
	hub    *Hub
	logger *log.Logger

	mu     sync.Mutex
	totals Totals
}

var _ lexisync.Observer = (*Handler)(nil)

// NewHandler creates a handler broadcasting on hub
func NewHandler(hub *Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	return &Handler{hub: hub, logger: logger}
}

// PullCompleted implements sync.Observer.
func (h *Handler) PullCompleted(ev lexisync.PullEvent) {
	h.mu.Lock()
	h.totals.Pulls++
	h.totals.EnvelopesServed += ev.Count
	h.mu.Unlock()

	h.send(MessageTypePull, PullData{
		Table:      ev.Table,
		Principal:  ev.Principal,
		Since:      ev.Since,
		Count:      ev.Count,
		DurationMs: ev.Duration.Milliseconds(),
	})
}

// PushCompleted implements sync.Observer.
func (h *Handler) PushCompleted(ev lexisync.PushEvent) {
	h.mu.Lock()
	h.totals.Pushes++
	h.totals.EnvelopesApplied += ev.Result.Applied()
	h.totals.EnvelopesRejected += ev.Result.ErrorCount
	h.totals.Conflicts += ev.Result.ConflictCount
	h.mu.Unlock()

	h.send(MessageTypePush, PushData{
		Table:      ev.Table,
		Principal:  ev.Principal,
		BatchSize:  ev.BatchSize,
		Created:    ev.Result.CreatedCount,
		Updated:    ev.Result.UpdatedCount,
		Deleted:    ev.Result.DeletedCount,
		Errors:     ev.Result.ErrorCount,
		Conflicts:  ev.Result.ConflictCount,
		DurationMs: ev.Duration.Milliseconds(),
	})
}

// Totals returns a snapshot of the accumulated counters
func (h *Handler) Totals() Totals {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totals
}

func (h *Handler) send(typ MessageType, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.hub.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
