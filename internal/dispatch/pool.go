package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/veracity/internal/audit"
	"github.com/ppiankov/veracity/internal/model"
)

var (
	// ErrBusy is the backpressure signal: queue full and the submit wait
	// elapsed. Callers decide whether to retry; the pool never does.
	ErrBusy = errors.New("dispatch queue at capacity")

	// ErrAlreadyInProgress rejects a duplicate job_id submitted before the
	// first audit completed
	ErrAlreadyInProgress = errors.New("audit already in progress for this job id")

	// ErrStopped rejects submissions after shutdown
	ErrStopped = errors.New("dispatch pool stopped")
)

// JobStatus is the externally visible progress of one job
type JobStatus struct {
	JobID  string             `json:"job_id"`
	State  model.AuditState   `json:"state"`
	Record *model.AuditRecord `json:"record,omitempty"` // Set once terminal
}

// task pairs a queued job with its cancellation state. The task context is
// derived from the pool's and drives the orchestrator, so cancelling an
// executing task stops its pipeline at the next stage boundary.
type task struct {
	job  *model.AuditJob
	ctx  context.Context
	stop context.CancelFunc

	mu        sync.Mutex
	cancelled bool
}

func (t *task) cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	t.stop()
	return true
}

func (t *task) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Pool runs audits on a bounded set of workers pulling from a bounded FIFO
// queue. Submit acknowledges immediately; execution is asynchronous and the
// finished record is handed to the publish callback.
type Pool struct {
	workers    int
	queue      chan *task
	submitWait time.Duration

	orchestrator *audit.Orchestrator
	publish      func(*model.AuditRecord)

	mu       sync.Mutex
	inflight map[string]*task // Queued or executing, keyed by job_id
	stopped  bool

	completed *gocache.Cache // Terminal records, evicted after retention TTL

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewPool creates a dispatch pool. Workers and queue size default to 10 and
// 50 when non-positive.
func NewPool(cfg model.DispatchConfig, orchestrator *audit.Orchestrator, publish func(*model.AuditRecord), logger *slog.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 10
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 50
	}
	retention := cfg.RetentionTTL
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	if publish == nil {
		publish = func(*model.AuditRecord) {}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:      workers,
		queue:        make(chan *task, queueSize),
		submitWait:   cfg.SubmitWait,
		orchestrator: orchestrator,
		publish:      publish,
		inflight:     make(map[string]*task),
		completed:    gocache.New(retention, retention),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("component", "dispatch"),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queue", cap(p.queue))
}

// Stop drains nothing: it cancels in-flight work cooperatively and waits
// for workers to exit
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	// The queue channel is never closed: a concurrent Submit could race a
	// close. Workers exit on context cancellation instead.
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Submit validates and enqueues a job, returning its job_id immediately.
// A missing job_id gets a generated UUID. When the queue is full, Submit
// blocks up to the configured wait and then returns ErrBusy.
func (p *Pool) Submit(job *model.AuditJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	t := &task{job: job}
	t.ctx, t.stop = context.WithCancel(p.ctx)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		t.stop()
		return "", ErrStopped
	}
	if _, dup := p.inflight[job.JobID]; dup {
		p.mu.Unlock()
		t.stop()
		return "", fmt.Errorf("%w: %s", ErrAlreadyInProgress, job.JobID)
	}
	p.inflight[job.JobID] = t
	p.mu.Unlock()

	if p.submitWait <= 0 {
		select {
		case p.queue <- t:
			p.logger.Debug("job queued", "job_id", job.JobID)
			return job.JobID, nil
		default:
			p.forget(job.JobID)
			t.stop()
			return "", ErrBusy
		}
	}

	timer := time.NewTimer(p.submitWait)
	defer timer.Stop()

	select {
	case p.queue <- t:
		p.logger.Debug("job queued", "job_id", job.JobID)
		return job.JobID, nil
	case <-timer.C:
		p.forget(job.JobID)
		t.stop()
		return "", ErrBusy
	case <-p.ctx.Done():
		p.forget(job.JobID)
		t.stop()
		return "", ErrStopped
	}
}

// Cancel stops a job. One not yet picked up is skipped at the queue; an
// executing job is cancelled cooperatively: the running stage finishes,
// then its pipeline fails at the next checkpoint. Returns false for
// unknown or already-cancelled jobs.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	t, ok := p.inflight[jobID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return t.cancel()
}

// Status reports the current state of a job: PENDING while queued or
// executing, or the terminal record once finished
func (p *Pool) Status(jobID string) (*JobStatus, bool) {
	p.mu.Lock()
	_, active := p.inflight[jobID]
	p.mu.Unlock()
	if active {
		return &JobStatus{JobID: jobID, State: model.StatePending}, true
	}

	if val, found := p.completed.Get(jobID); found {
		record := val.(*model.AuditRecord)
		return &JobStatus{JobID: jobID, State: record.State, Record: record}, true
	}
	return nil, false
}

// QueueLength reports the number of jobs waiting for a worker
func (p *Pool) QueueLength() int {
	return len(p.queue)
}

func (p *Pool) forget(jobID string) {
	p.mu.Lock()
	delete(p.inflight, jobID)
	p.mu.Unlock()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			if t.isCancelled() {
				p.forget(t.job.JobID)
				p.logger.Debug("job cancelled before pickup", "job_id", t.job.JobID)
				continue
			}
			p.runJob(id, t)
		}
	}
}

// runJob executes one audit, converting a panic inside the pipeline into a
// FAILED record so the worker survives and returns to the pool
func (p *Pool) runJob(workerID int, t *task) {
	job := t.job
	start := time.Now()
	defer t.stop()

	var record *model.AuditRecord
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker recovered from panic", "worker", workerID, "job_id", job.JobID, "panic", r)
				record = model.NewAuditRecord(job)
				record.Fail("dispatch", fmt.Errorf("panic during audit: %v", r))
			}
		}()
		record = p.orchestrator.Run(t.ctx, job)
	}()

	// Retain before dropping from inflight so a concurrent Status call never
	// sees the job vanish between the two
	p.completed.SetDefault(job.JobID, record)
	p.mu.Lock()
	delete(p.inflight, job.JobID)
	p.mu.Unlock()

	p.logger.Info("job finished",
		"worker", workerID,
		"job_id", job.JobID,
		"state", record.State,
		"duration", time.Since(start))

	p.publish(record)
}
