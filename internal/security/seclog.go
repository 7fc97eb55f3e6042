package security

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

// EventSink persists a batch of security events.
type EventSink interface {
	InsertBatch(ctx context.Context, events []models.SecurityEvent) error
}

// SecurityLogger buffers events and writes them to the sink in batches.
// A failed flush is logged and the batch is dropped.
type SecurityLogger struct {
	sink          EventSink
	log           logging.Logger
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	pending []models.SecurityEvent
	full    chan struct{}
}

func NewSecurityLogger(sink EventSink, log logging.Logger, batchSize int, flushInterval time.Duration) *SecurityLogger {
	if batchSize <= 0 {
		batchSize = 10
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &SecurityLogger{
		sink:          sink,
		log:           log.With("module", "seclog"),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		full:          make(chan struct{}, 1),
	}
}

// Event is the caller-facing shape of one observation. Data is masked with
// MaskSensitive before it is buffered.
type Event struct {
	Type       string
	Data       map[string]any
	Suspicious bool
	UserAgent  string
	URL        string
}

// Log buffers e. When the buffer reaches the batch size, the Run loop is
// woken to flush it.
func (l *SecurityLogger) Log(ctx context.Context, e Event) {
	data, err := json.Marshal(MaskSensitive(e.Data))
	if err != nil {
		l.log.Warn(ctx, "security event data not serializable", "type", e.Type, "error", err)
		data = []byte("{}")
	}

	ev := models.SecurityEvent{
		Timestamp:  l.now().UTC(),
		EventType:  e.Type,
		EventData:  data,
		Suspicious: e.Suspicious,
		UserAgent:  e.UserAgent,
		URL:        e.URL,
	}

	l.mu.Lock()
	l.pending = append(l.pending, ev)
	n := len(l.pending)
	l.mu.Unlock()

	if n >= l.batchSize {
		select {
		case l.full <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered events.
func (l *SecurityLogger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush writes everything buffered so far.
func (l *SecurityLogger) Flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := l.sink.InsertBatch(ctx, batch); err != nil {
		l.log.Error(ctx, "security event flush failed", "events", len(batch), "error", err)
		return
	}
	l.log.Debug(ctx, "security events flushed", "events", len(batch))
}

// Run flushes on every tick and whenever the batch fills, until ctx is
// done. The final flush uses a fresh context so shutdown does not lose events.
func (l *SecurityLogger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			l.Flush(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			l.Flush(ctx)
		case <-l.full:
			l.Flush(ctx)
		}
	}
}
