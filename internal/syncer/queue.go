package syncer

import (
	"sync"
	"time"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/metrics"
	"github.com/yourname/focustracker/internal/storage"
)

type OpKind string

const (
	OpSaveSession   OpKind = "save_session"
	OpUpdateSession OpKind = "update_session"
	OpSaveStats     OpKind = "save_stats"
)

// Op is one pending datastore write. Ops are self-contained so the queue
// can be replayed after a restart.
type Op struct {
	ID         string                    `json:"id"`
	Kind       OpKind                    `json:"kind"`
	Session    *internal.PomodoroSession `json:"session,omitempty"`
	Stats      *internal.UserStats       `json:"stats,omitempty"`
	Attempts   int                       `json:"attempts"` // drain attempts so far
	EnqueuedAt time.Time                 `json:"enqueued_at"`
}

// Queue is the durable FIFO retry queue. Every mutation is written through
// to disk immediately; losing queued ops on restart would break the
// offline-write guarantee, so there is no debounce here.
type Queue struct {
	mu         sync.Mutex
	ops        []Op
	path       string
	maxRetries int
	logger     internal.Logger
}

func NewQueue(path string, maxRetries int, logger internal.Logger) (*Queue, error) {
	q := &Queue{path: path, maxRetries: maxRetries, logger: logger}
	ops, err := loadOps(path)
	if err != nil {
		return nil, err
	}
	q.ops = ops
	metrics.QueueDepth.Set(float64(len(q.ops)))
	return q, nil
}

func loadOps(path string) ([]Op, error) {
	ops, err := storage.ReadJSONFile[Op](path)
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (q *Queue) Enqueue(op Op) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	q.persistLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drain runs fn over the queue in FIFO order. A failed op is retried on
// later drains until maxRetries drain attempts have failed, then dropped
// with a logged failure; the inline write whose failure queued the op does
// not count against the budget. Returns how many ops executed successfully.
func (q *Queue) Drain(fn func(Op) error) int {
	q.mu.Lock()
	pending := q.ops
	q.ops = nil
	q.mu.Unlock()

	done := 0
	var remaining []Op
	for _, op := range pending {
		// Every drain execution retries a write that has already failed once.
		op.Attempts++
		metrics.OpRetries.Inc()
		if err := fn(op); err != nil {
			if op.Attempts >= q.maxRetries {
				metrics.OpsDropped.Inc()
				q.logger.Errorf("syncer: dropping op %s (%s) after %d attempts: %v",
					op.ID, op.Kind, op.Attempts, err)
				continue
			}
			q.logger.Warnf("syncer: op %s (%s) attempt %d failed: %v", op.ID, op.Kind, op.Attempts, err)
			remaining = append(remaining, op)
			continue
		}
		done++
	}

	q.mu.Lock()
	// Ops enqueued while draining stay behind the requeued failures to keep
	// per-record ordering.
	q.ops = append(remaining, q.ops...)
	q.persistLocked()
	q.mu.Unlock()
	return done
}

func (q *Queue) persistLocked() {
	metrics.QueueDepth.Set(float64(len(q.ops)))
	ops := q.ops
	if ops == nil {
		ops = []Op{}
	}
	if err := storage.AtomicWriteJSON(q.path, ops); err != nil {
		q.logger.Errorf("syncer: failed to persist op queue: %v", err)
	}
}
