package health

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

// scheduledProbe is one entry in the due-time min-heap, adapted from the
// teacher's scheduledCheck (internal/adapter/health/checker.go).
type scheduledProbe struct {
	endpoint domain.EndpointConfig
	dueTime  time.Time
}

type probeHeap []*scheduledProbe

func (h probeHeap) Len() int            { return len(h) }
func (h probeHeap) Less(i, j int) bool  { return h[i].dueTime.Before(h[j].dueTime) }
func (h probeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *probeHeap) Push(x interface{}) { *h = append(*h, x.(*scheduledProbe)) }
func (h *probeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

type probeJob struct {
	endpoint domain.EndpointConfig
}

// Scheduler is the ports.HealthCheckScheduler implementation: a heap-based
// timer feeding a small worker pool, in the style of
// HealthScheduler + WorkerPool pairing (internal/adapter/health/scheduler.go,
// worker_pool.go). Observed live traffic defers an endpoint's next
// scheduled probe instead of running a redundant one.
type Scheduler struct {
	prober  ports.HealthProber
	manager *Manager
	log     *logger.StyledLogger

	heap   probeHeap
	heapMu sync.Mutex

	observed sync.Map // map[string]time.Time, last time real traffic hit an endpoint

	jobCh       chan probeJob
	stopCh      chan struct{}
	wg          sync.WaitGroup
	workerCount int

	endpointsMu sync.Mutex
	endpoints   map[string]domain.EndpointConfig
}

func NewScheduler(prober ports.HealthProber, manager *Manager, log *logger.StyledLogger) *Scheduler {
	h := probeHeap{}
	heap.Init(&h)
	return &Scheduler{
		prober:      prober,
		manager:     manager,
		log:         log,
		heap:        h,
		jobCh:       make(chan probeJob, DefaultQueueSize),
		stopCh:      make(chan struct{}),
		workerCount: DefaultWorkerCount,
		endpoints:   make(map[string]domain.EndpointConfig),
	}
}

// Add registers endpoint for periodic probing, due immediately.
func (s *Scheduler) Add(endpoint domain.EndpointConfig) {
	s.endpointsMu.Lock()
	s.endpoints[endpoint.ID] = endpoint
	s.endpointsMu.Unlock()

	s.heapMu.Lock()
	heap.Push(&s.heap, &scheduledProbe{endpoint: endpoint, dueTime: time.Now()})
	s.heapMu.Unlock()
}

func (s *Scheduler) Start(ctx context.Context) error {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	go s.loop(ctx)
	go s.cleanupLoop(ctx)
	return nil
}

func (s *Scheduler) Stop() error {
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *Scheduler) NotifyObserved(endpointID string, at time.Time) {
	s.observed.Store(endpointID, at)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.processDue(now)
		}
	}
}

func (s *Scheduler) processDue(now time.Time) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()

	for s.heap.Len() > 0 {
		next := s.heap[0]
		if now.Before(next.dueTime) {
			break
		}
		probe := heap.Pop(&s.heap).(*scheduledProbe)

		if lastObserved, ok := s.observed.Load(probe.endpoint.ID); ok {
			if now.Sub(lastObserved.(time.Time)) < probe.endpoint.HealthCheck.Interval {
				heap.Push(&s.heap, &scheduledProbe{endpoint: probe.endpoint, dueTime: now.Add(probe.endpoint.HealthCheck.Interval)})
				continue
			}
		}

		select {
		case s.jobCh <- probeJob{endpoint: probe.endpoint}:
		default:
			heap.Push(&s.heap, &scheduledProbe{endpoint: probe.endpoint, dueTime: now.Add(time.Second)})
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case job := <-s.jobCh:
			s.runProbe(ctx, job.endpoint)
		}
	}
}

func (s *Scheduler) runProbe(ctx context.Context, endpoint domain.EndpointConfig) {
	timeout := endpoint.HealthCheck.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	outcome := s.prober.Probe(probeCtx, endpoint)
	cancel()

	s.manager.RecordOutcome(endpoint.ID, outcome)

	interval := endpoint.HealthCheck.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.heapMu.Lock()
	heap.Push(&s.heap, &scheduledProbe{endpoint: endpoint, dueTime: time.Now().Add(interval)})
	s.heapMu.Unlock()
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.manager.cleanupStale(now)
		}
	}
}
