package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/cache"
	"github.com/aukilabs/tessera/models"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers = 8
)

// Provider loads the resources of a layer kind.
type Provider interface {
	// Prepares a layer before its first update, like fetching the root
	// description of a dataset.
	PreprocessLayer(context.Context, *models.Layer) error

	// Executes a command and returns the decoded resource. Implementations
	// must return early when the command is cancelled.
	ExecuteCommand(context.Context, *models.Command) (models.Resource, error)
}

// Options configures a scheduler.
type Options struct {
	// The number of commands executed concurrently.
	Workers int

	// The number of commands dispatched per second. Zero is unlimited.
	Rate float64

	// The number of commands that can be dispatched at once when Rate is set.
	Burst int
}

// Scheduler queues commands by priority and executes them with the provider
// registered for their protocol. Execute, Dispatch and Drain must be called
// from the frame goroutine. Providers run on worker goroutines.
type Scheduler struct {
	cache   *cache.Cache
	workers int
	limiter *rate.Limiter

	providerMutex sync.RWMutex
	providers     map[string]Provider

	queue    commandQueue
	pending  map[models.CommandKey]*request
	inFlight map[models.CommandKey]*request
	seq      uint64
	frame    uint64

	work        chan *request
	completions chan completion
	flight      singleflight.Group

	startOnce sync.Once
	closeOnce sync.Once
	cancel    func()
	wg        sync.WaitGroup
}

type completion struct {
	req      *request
	resource models.Resource
	err      error
}

func New(c *cache.Cache, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.Workers
	}

	return &Scheduler{
		cache:       c,
		workers:     opts.Workers,
		limiter:     rate.NewLimiter(limit, opts.Burst),
		providers:   make(map[string]Provider),
		pending:     make(map[models.CommandKey]*request),
		inFlight:    make(map[models.CommandKey]*request),
		work:        make(chan *request, opts.Workers),
		completions: make(chan completion, opts.Workers*2),
		cancel:      func() {},
	}
}

// Register sets the provider executing the commands of a protocol.
func (s *Scheduler) Register(protocol string, p Provider) {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.providers[protocol] = p
}

func (s *Scheduler) provider(protocol string) (Provider, bool) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	p, ok := s.providers[protocol]
	return p, ok
}

// PreprocessLayer runs the layer preprocessing of the provider registered for
// protocol.
func (s *Scheduler) PreprocessLayer(ctx context.Context, protocol string, layer *models.Layer) error {
	p, ok := s.provider(protocol)
	if !ok {
		return errors.New("provider not found").
			WithType(models.ErrTypeProviderNotFound).
			WithTag("protocol", protocol)
	}

	if err := p.PreprocessLayer(ctx, layer); err != nil {
		return errors.New("preprocessing layer failed").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", layer.Name).
			WithTag("protocol", protocol).
			Wrap(err)
	}
	return nil
}

// Execute schedules a command. A cached result resolves the returned future
// immediately. A command whose key is already pending returns the future of
// the pending command.
func (s *Scheduler) Execute(cmd *models.Command) *models.Future {
	key := cmd.Key()

	if r, ok := s.pending[key]; ok {
		if r.index >= 0 && cmd.Priority > r.cmd.Priority {
			r.cmd.Priority = cmd.Priority
			heap.Fix(&s.queue, r.index)
		}
		instrumentCommand(cmd.Protocol, outcomeDeduplicated)
		return r.future
	}

	if res, ok := s.cache.Get(key, s.frame); ok {
		instrumentCommand(cmd.Protocol, outcomeCacheHit)
		return models.Resolved(res, nil)
	}

	if _, ok := s.provider(cmd.Protocol); !ok {
		instrumentCommand(cmd.Protocol, outcomeFailed)
		return models.Resolved(nil, errors.New("provider not found").
			WithType(models.ErrTypeProviderNotFound).
			WithTag("protocol", cmd.Protocol).
			WithTag("url", cmd.URL))
	}

	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}

	s.seq++
	r := &request{
		cmd:    cmd,
		future: models.NewFuture(),
		seq:    s.seq,
	}
	s.pending[key] = r
	heap.Push(&s.queue, r)
	return r.future
}

// CommandsWaitingExecutionCount returns the number of queued and executing
// commands.
func (s *Scheduler) CommandsWaitingExecutionCount() int {
	return s.queue.Len() + len(s.inFlight)
}

// Dispatch drops stale commands and hands the highest priority commands to
// the workers.
func (s *Scheduler) Dispatch() {
	for _, r := range s.inFlight {
		if !r.cmd.Cancelled() && r.cmd.ShouldDrop() {
			r.cmd.Cancel()
		}
	}

	for i := 0; i < s.queue.Len(); {
		r := s.queue[i]
		if !r.cmd.ShouldDrop() {
			i++
			continue
		}
		heap.Remove(&s.queue, i)
		s.drop(r)
	}

	for s.queue.Len() != 0 && len(s.inFlight) < s.workers {
		if !s.limiter.Allow() {
			break
		}

		r := heap.Pop(&s.queue).(*request)
		r.startedAt = time.Now()
		s.inFlight[r.cmd.Key()] = r
		s.work <- r
	}

	instrumentQueue(s.queue.Len(), len(s.inFlight))
}

// Drain commits the results received since the previous call. Results of
// commands that became stale are dropped without touching the cache. It
// returns the number of committed results.
func (s *Scheduler) Drain(frame uint64) int {
	s.frame = frame

	var count int
	for {
		select {
		case c := <-s.completions:
			s.commit(c)
			count++

		default:
			return count
		}
	}
}

func (s *Scheduler) commit(c completion) {
	cmd := c.req.cmd
	key := cmd.Key()
	delete(s.inFlight, key)
	delete(s.pending, key)
	instrumentLatency(cmd.Protocol, time.Since(c.req.startedAt))

	if c.err == nil && cmd.ShouldDrop() {
		c.err = models.ErrCancelled(cmd)
	}

	switch {
	case models.IsCancelled(c.err):
		instrumentCommand(cmd.Protocol, outcomeCancelled)
		logs.WithTag("url", cmd.URL).
			WithTag("key", key).
			Debug("command cancelled")
		c.req.future.Resolve(nil, c.err)

	case c.err != nil:
		instrumentCommand(cmd.Protocol, outcomeFailed)
		c.req.future.Resolve(nil, errors.New("executing command failed").
			WithType(models.ErrTypeLoadFailed).
			WithTag("protocol", cmd.Protocol).
			WithTag("url", cmd.URL).
			Wrap(c.err))

	default:
		instrumentCommand(cmd.Protocol, outcomeLoaded)
		s.cache.Put(key, c.resource, s.frame)
		c.req.future.Resolve(c.resource, nil)
	}
}

func (s *Scheduler) drop(r *request) {
	r.cmd.Cancel()
	delete(s.pending, r.cmd.Key())
	instrumentCommand(r.cmd.Protocol, outcomeCancelled)
	r.future.Resolve(nil, models.ErrCancelled(r.cmd))
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.startWorker(ctx)
		}
	})
}

func (s *Scheduler) startWorker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case r := <-s.work:
			s.execute(ctx, r)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, r *request) {
	cmd := r.cmd
	if cmd.Cancelled() {
		s.complete(ctx, completion{req: r, err: models.ErrCancelled(cmd)})
		return
	}

	p, _ := s.provider(cmd.Protocol)

	// Different layers or nodes can request the same URL: only one provider
	// call runs at a time per URL.
	res, err, shared := s.flight.Do(cmd.Protocol+" "+cmd.URL, func() (any, error) {
		return p.ExecuteCommand(ctx, cmd)
	})
	if shared {
		instrumentSharedCall(cmd.Protocol)
	}

	if err == nil && cmd.Cancelled() {
		err = models.ErrCancelled(cmd)
	}
	s.complete(ctx, completion{req: r, resource: res, err: err})
}

func (s *Scheduler) complete(ctx context.Context, c completion) {
	select {
	case s.completions <- c:
	case <-ctx.Done():
	}
}

// Close stops the workers and cancels every pending command.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		for _, r := range s.pending {
			r.cmd.Cancel()
			r.future.Resolve(nil, models.ErrCancelled(r.cmd))
		}
		s.pending = make(map[models.CommandKey]*request)
		s.inFlight = make(map[models.CommandKey]*request)
		s.queue = nil
	})
}
