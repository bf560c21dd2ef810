package service

import (
	"context"
	"sync"
	"time"

	commonlog "semchat/server/common/log"
	"semchat/server/domain"
	"semchat/server/vector"
)

const (
	defaultOutboxCapacity    = 1024
	defaultOutboxMaxAttempts = 5
	defaultOutboxInterval    = 30 * time.Second
	outboxFlushTimeout       = 20 * time.Second
)

type outboxEntry struct {
	message  domain.Message
	attempts int
}

// IndexOutbox holds messages whose embed or index step failed and retries
// them in the background. In-memory and bounded: a process restart loses the
// queue, which is acceptable for the best-effort indexing contract; the
// reindex tool closes any remaining gap.
type IndexOutbox struct {
	embedder Embedder
	index    vector.Index

	mu      sync.Mutex
	pending []outboxEntry

	capacity    int
	maxAttempts int
	interval    time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewIndexOutbox(embedder Embedder, index vector.Index) *IndexOutbox {
	return &IndexOutbox{
		embedder:    embedder,
		index:       index,
		capacity:    defaultOutboxCapacity,
		maxAttempts: defaultOutboxMaxAttempts,
		interval:    defaultOutboxInterval,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (o *IndexOutbox) WithInterval(interval time.Duration) *IndexOutbox {
	if interval > 0 {
		o.interval = interval
	}
	return o
}

func (o *IndexOutbox) Enqueue(message domain.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) >= o.capacity {
		// Shed the oldest entry rather than grow without bound.
		dropped := o.pending[0]
		o.pending = o.pending[1:]
		commonlog.Errorf("event=index_outbox action=enqueue status=evicted message_id=%s", dropped.message.ID)
	}
	o.pending = append(o.pending, outboxEntry{message: message})
	commonlog.Infof("event=index_outbox action=enqueue status=ok message_id=%s pending=%d", message.ID, len(o.pending))
}

// Start launches the background flusher. Stop drains it.
func (o *IndexOutbox) Start() {
	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), outboxFlushTimeout)
				o.Flush(ctx)
				cancel()
			}
		}
	}()
}

func (o *IndexOutbox) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
}

// Flush retries every pending entry once. Entries that fail again and still
// have attempts left stay queued; exhausted entries are dropped with an error
// log. Returns the number of successfully indexed messages.
func (o *IndexOutbox) Flush(ctx context.Context) int {
	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	indexed := 0
	var remaining []outboxEntry
	for _, entry := range batch {
		if err := o.indexOnce(ctx, entry.message); err == nil {
			indexed++
			commonlog.Infof("event=index_outbox action=retry status=ok message_id=%s", entry.message.ID)
			continue
		} else {
			entry.attempts++
			if entry.attempts >= o.maxAttempts {
				commonlog.Errorf("event=index_outbox action=retry status=exhausted message_id=%s attempts=%d error=%v", entry.message.ID, entry.attempts, err)
				continue
			}
			commonlog.Warnf("event=index_outbox action=retry status=failed message_id=%s attempts=%d error=%v", entry.message.ID, entry.attempts, err)
			remaining = append(remaining, entry)
		}
	}

	if len(remaining) > 0 {
		o.mu.Lock()
		o.pending = append(remaining, o.pending...)
		o.mu.Unlock()
	}
	return indexed
}

func (o *IndexOutbox) indexOnce(ctx context.Context, message domain.Message) error {
	vec, err := o.embedder.Embed(ctx, message.Text)
	if err != nil {
		return err
	}
	return o.index.Upsert(ctx, indexPoint(message, vec))
}

func (o *IndexOutbox) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
