package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"studentmonitor/internal/metrics"
	"studentmonitor/internal/router"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

const (
	// DefaultPublishQueueSize buffers bursts from many producers
	DefaultPublishQueueSize = 1000

	attachQueueSize  = 100
	archiveQueueSize = 1000
	archiveTimeout   = 5 * time.Second
)

// Options configures a Hub. Zero values select defaults; Journal may be nil.
type Options struct {
	PublishQueueSize int
	Journal          interfaces.Journal
	Metrics          *metrics.Metrics
	Clock            clockwork.Clock
}

// Hub serializes every publish and consumer attach through one goroutine,
// so all consumers observe records in history order and a joining consumer's
// snapshot never overlaps the updates that follow it.
type Hub struct {
	publishChannel  chan *publishRequest
	attachChannel   chan *attachRequest
	archiveChannel  chan *types.JournalEntry
	shutdownChannel chan struct{}
	done            chan struct{}

	router  *router.Router
	journal interfaces.Journal
	metrics *metrics.Metrics
	clock   clockwork.Clock

	running bool
	started bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

type publishRequest struct {
	record types.AnalysisRecord
	origin interfaces.Connection
}

type attachRequest struct {
	conn   interfaces.Connection
	result chan error
}

// NewHub creates a hub in front of r
func NewHub(r *router.Router, opts Options) *Hub {
	queueSize := opts.PublishQueueSize
	if queueSize <= 0 {
		queueSize = DefaultPublishQueueSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Hub{
		publishChannel:  make(chan *publishRequest, queueSize),
		attachChannel:   make(chan *attachRequest, attachQueueSize),
		archiveChannel:  make(chan *types.JournalEntry, archiveQueueSize),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		router:          r,
		journal:         opts.Journal,
		metrics:         opts.Metrics,
		clock:           clock,
	}
}

// Start launches the hub goroutine and, when a journal is set, its archiver.
// A stopped hub cannot be restarted.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running || h.started {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.started = true
	h.mu.Unlock()

	log.Println("Starting record hub...")

	h.wg.Add(1)
	go h.run(ctx)

	if h.journal != nil {
		h.wg.Add(1)
		go h.archive()
	}

	return nil
}

// Stop shuts the hub down and waits for queued journal writes to finish.
// A hub whose context was cancelled has already stopped; Stop still waits
// for its archiver and returns ErrHubNotRunning.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		h.wg.Wait()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping record hub...")
	h.wg.Wait()
	return nil
}

// IsRunning reports whether Start has been called and Stop has not
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Submit queues record for publication without blocking.
// When the queue is full the record is rejected with ErrPublishQueueFull.
func (h *Hub) Submit(record types.AnalysisRecord, origin interfaces.Connection) error {
	if record == nil {
		return types.ErrNilRecord
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.publishChannel <- &publishRequest{record: record, origin: origin}:
		return nil
	default:
		return ErrPublishQueueFull
	}
}

// AttachConsumer registers conn and sends its history snapshot from the hub
// goroutine, then returns the outcome.
func (h *Hub) AttachConsumer(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	req := &attachRequest{conn: conn, result: make(chan error, 1)}
	select {
	case h.attachChannel <- req:
	case <-h.done:
		return ErrHubNotRunning
	}

	select {
	case err := <-req.result:
		return err
	case <-h.done:
		return ErrHubNotRunning
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()
	defer close(h.archiveChannel)
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case req := <-h.publishChannel:
			h.handlePublish(req)

		case req := <-h.attachChannel:
			req.result <- h.router.AttachConsumer(req.conn)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handlePublish(req *publishRequest) {
	h.router.Publish(req.record, req.origin)

	if h.journal == nil {
		return
	}

	entry := &types.JournalEntry{
		ID:          uuid.New().String(),
		Status:      req.record.Status(),
		FaceCount:   req.record.FaceCount(),
		Record:      req.record.Clone(),
		PublishedAt: h.clock.Now(),
	}
	if req.origin != nil {
		entry.ProducerID = req.origin.GetID()
	}

	select {
	case h.archiveChannel <- entry:
	default:
		log.Printf("Journal queue full, dropping record %s", entry.ID)
		h.countJournalError()
	}
}

// archive writes journal entries until the hub loop exits and the queue drains
func (h *Hub) archive() {
	defer h.wg.Done()

	for entry := range h.archiveChannel {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := h.journal.StoreRecord(ctx, entry); err != nil {
			log.Printf("Failed to journal record %s: %v", entry.ID, err)
			h.countJournalError()
		}
		cancel()
	}
}

func (h *Hub) countJournalError() {
	if h.metrics != nil {
		h.metrics.JournalErrors.Inc()
	}
}
