package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInFlight is returned when a message id is already being processed.
// Duplicate webhook deliveries for the same message are rejected rather
// than processed twice or queued.
var ErrInFlight = errors.New("message already in flight")

// Processing stages, in state-machine order. The machine is strictly
// forward-moving and single-pass per message.
const (
	StageStarted      = "started"
	StageClassifying  = "classifying"
	StageRecommending = "recommending"
	StageDelivering   = "delivering"
	StageCompleted    = "completed"
)

// ProcessingState is the transient in-flight record for one message. It
// exists only between intake and the terminal outcome.
type ProcessingState struct {
	MessageID  string         `json:"message_id"`
	StartTime  time.Time      `json:"start_time"`
	Stage      string         `json:"stage"`
	LastUpdate time.Time      `json:"last_update"`
	Message    RawMessage     `json:"message"`
	Context    MessageContext `json:"context"`
}

// Stats are the pipeline's process-wide counters. Monotonic; never reset.
type Stats struct {
	MessagesProcessed        uint64 `json:"messages_processed"`
	TasksDetected            uint64 `json:"tasks_detected"`
	RecommendationsGenerated uint64 `json:"recommendations_generated"`
	DeliveriesCompleted      uint64 `json:"deliveries_completed"`
	Errors                   uint64 `json:"errors"`
}

// Tracker owns the in-flight map and the stats counters, the only two
// pieces of state shared between concurrent ProcessMessage calls.
type Tracker struct {
	mu       sync.Mutex
	inflight map[string]*ProcessingState

	messagesProcessed        atomic.Uint64
	tasksDetected            atomic.Uint64
	recommendationsGenerated atomic.Uint64
	deliveriesCompleted      atomic.Uint64
	errors                   atomic.Uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{inflight: make(map[string]*ProcessingState)}
}

// Begin inserts the in-flight entry for a message. At most one entry per
// message id may exist; a second intake while the first is still running
// gets ErrInFlight.
func (t *Tracker) Begin(messageID string, msg RawMessage, mc MessageContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[messageID]; ok {
		return ErrInFlight
	}
	now := time.Now()
	t.inflight[messageID] = &ProcessingState{
		MessageID:  messageID,
		StartTime:  now,
		Stage:      StageStarted,
		LastUpdate: now,
		Message:    msg,
		Context:    mc,
	}
	return nil
}

// UpdateStage advances the stage of an in-flight message. Unknown ids are
// ignored; the entry may already have reached a terminal outcome.
func (t *Tracker) UpdateStage(messageID, stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.inflight[messageID]; ok {
		st.Stage = stage
		st.LastUpdate = time.Now()
	}
}

// End removes the in-flight entry. Every terminal path, including panics,
// must reach here exactly once.
func (t *Tracker) End(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, messageID)
}

// InFlight returns the number of messages currently being processed.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Stale returns copies of in-flight entries older than age. Used by the
// gateway sweeper for diagnostics; the pipeline itself removes entries on
// every terminal path.
func (t *Tracker) Stale(age time.Duration) []ProcessingState {
	cutoff := time.Now().Add(-age)
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ProcessingState
	for _, st := range t.inflight {
		if st.StartTime.Before(cutoff) {
			out = append(out, *st)
		}
	}
	return out
}

// Evict removes an entry without a terminal outcome. Sweeper use only.
func (t *Tracker) Evict(messageID string) {
	t.End(messageID)
}

func (t *Tracker) addMessageProcessed() { t.messagesProcessed.Add(1) }
func (t *Tracker) addTaskDetected()     { t.tasksDetected.Add(1) }
func (t *Tracker) addRecommendations()  { t.recommendationsGenerated.Add(1) }
func (t *Tracker) addDeliveries(n int) {
	if n > 0 {
		t.deliveriesCompleted.Add(uint64(n))
	}
}
func (t *Tracker) addError() { t.errors.Add(1) }

// Snapshot reads the counters. Safe to call concurrently with processing.
func (t *Tracker) Snapshot() Stats {
	return Stats{
		MessagesProcessed:        t.messagesProcessed.Load(),
		TasksDetected:            t.tasksDetected.Load(),
		RecommendationsGenerated: t.recommendationsGenerated.Load(),
		DeliveriesCompleted:      t.deliveriesCompleted.Load(),
		Errors:                   t.errors.Load(),
	}
}
