package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
)

// Recorder accepts audit entries from business operations and persists them
// from an independent worker. The producer side only pays a bounded enqueue
// step: the queue is a fixed-size channel and Record blocks when it is full
// (bounded-block policy) rather than dropping. Persistence failures are
// retried with backoff; an entry that still fails after the retry budget is
// logged as an operational alert and dropped — the triggering business
// operation is never rolled back or failed by its audit write.
type Recorder struct {
	db      *gorm.DB
	log     *zap.Logger
	queue   chan models.AuditEntry
	pending sync.WaitGroup
	done    chan struct{}

	retryMax int
	backoff  time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(db *gorm.DB, log *zap.Logger, queueSize, retryMax int, backoff time.Duration) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	r := &Recorder{
		db:       db,
		log:      log,
		queue:    make(chan models.AuditEntry, queueSize),
		done:     make(chan struct{}),
		retryMax: retryMax,
		backoff:  backoff,
	}
	go r.worker()
	return r
}

// Record enqueues an entry. OccurredAt is stamped here, at event time, so the
// persisted order per entity matches the causal order of the operations no
// matter when the worker lands each row. Entries recorded after Close are
// logged and discarded.
func (r *Recorder) Record(e models.AuditEntry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Warn("audit entry after shutdown, discarded",
			zap.String("action", e.Action), zap.Uint("actor", e.ActorID))
		return
	}
	r.pending.Add(1)
	r.queue <- e
}

func (r *Recorder) worker() {
	defer close(r.done)
	for e := range r.queue {
		r.persist(e)
		r.pending.Done()
	}
}

func (r *Recorder) persist(e models.AuditEntry) {
	var err error
	for attempt := 0; attempt <= r.retryMax; attempt++ {
		if attempt > 0 {
			time.Sleep(r.backoff * time.Duration(attempt))
		}
		if err = r.db.Create(&e).Error; err == nil {
			return
		}
		e.ID = 0 // reset any partially assigned key before retrying
	}
	r.log.Error("audit entry dropped after retries",
		zap.String("action", e.Action),
		zap.String("entity_type", e.EntityType),
		zap.Uint("entity_id", e.EntityID),
		zap.Int("attempts", r.retryMax+1),
		zap.Error(err),
	)
}

// Flush blocks until every entry recorded so far has been handled.
func (r *Recorder) Flush() {
	r.pending.Wait()
}

// Close drains the queue and stops the worker. Safe to call once at shutdown.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.pending.Wait()
	close(r.queue)
	<-r.done
}
