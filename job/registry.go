package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"mediaflow/config"
	"mediaflow/normalize"
	"mediaflow/progress"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrNotFound is returned by a Service when the server no longer knows the job.
	ErrNotFound = errors.New("job not found on server")
	// ErrUnknownJob means the registry is not tracking the id.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobPending means the job has not reached a terminal status yet.
	ErrJobPending = errors.New("job has not finished")
)

// FailedError is returned by Result for a job that ended in failure.
type FailedError struct {
	JobID   string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Service is the remote processing server as seen by the registry.
type Service interface {
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
}

// Eviction reasons, also used as metric labels.
const (
	evictNotFound  = "not_found"
	evictRetention = "retention"
	evictCancelled = "cancelled"
)

// tombstoneSize bounds how many evicted ids RefreshAll refuses to re-add.
const tombstoneSize = 1024

type entry struct {
	job        Job
	blocks     []normalize.Block
	resultErr  error
	poll       *pollTask
	evictTimer *time.Timer
	tracker    *tracker
}

// Registry mirrors the server's jobs and keeps at most one poll loop per job.
type Registry struct {
	cfg        *config.Config
	svc        Service
	normalizer *normalize.Normalizer
	metrics    *Metrics
	events     *EventBus
	tombstones *lru.Cache[string, struct{}]

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
}

func NewRegistry(cfg *config.Config, svc Service, normalizer *normalize.Normalizer, metrics *Metrics) *Registry {
	if normalizer == nil {
		normalizer = normalize.New(cfg.UploadURL)
	}
	tombstones, _ := lru.New[string, struct{}](tombstoneSize)
	return &Registry{
		cfg:        cfg,
		svc:        svc,
		normalizer: normalizer,
		metrics:    metrics,
		events:     NewEventBus(cfg.EventBuffer),
		tombstones: tombstones,
		ctx:        context.Background(),
		entries:    make(map[string]*entry),
	}
}

// Events exposes the change feed.
func (r *Registry) Events() *EventBus {
	return r.events
}

// Start runs the periodic refresh until ctx is cancelled. Poll loops started
// afterwards are bound to ctx as well.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	log.Println("Job registry started. Refresh interval:", r.cfg.RefreshInterval)
	go r.refreshLoop(ctx)
}

func (r *Registry) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	r.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Refresh loop shutting down.")
			r.stopAll()
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// stopAll cancels every poll loop and eviction timer and waits for the loops to exit.
func (r *Registry) stopAll() {
	r.mu.Lock()
	var tasks []*pollTask
	for _, e := range r.entries {
		if e.poll != nil {
			e.poll.stop()
			tasks = append(tasks, e.poll)
			e.poll = nil
		}
		if e.evictTimer != nil {
			e.evictTimer.Stop()
			e.evictTimer = nil
		}
	}
	r.mu.Unlock()

	for _, t := range tasks {
		t.wait()
	}
}

// Register starts tracking id. snapshot may be nil; if given it is merged like
// any polled snapshot. Registering an id that is already tracked only merges
// the snapshot and never starts a second poll loop.
func (r *Registry) Register(id string, snapshot *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tombstones.Remove(id)
	e, ok := r.entries[id]
	if !ok {
		e = &entry{job: Job{
			ID:        id,
			Status:    StatusPending,
			CreatedAt: float64(time.Now().UnixNano()) / 1e9,
		}}
		r.entries[id] = e
		log.Printf("Job %s registered.", id)
	}
	if snapshot != nil {
		snap := *snapshot
		snap.ID = id
		r.mergeLocked(e, snap)
	}
	if e.job.Status.Active() {
		r.startPollLocked(e)
	}
	r.updateActiveLocked()
}

func (r *Registry) startPollLocked(e *entry) {
	if e.poll != nil {
		return
	}
	id := e.job.ID
	e.poll = startPollTask(r.ctx, r.cfg.PollInterval, func(ctx context.Context) {
		_ = r.Poll(ctx, id)
	})
}

// Poll fetches one snapshot of id and merges it. A job the server no longer
// knows is evicted. Other fetch errors are logged and returned; the job stays
// tracked and the next tick retries.
func (r *Registry) Poll(ctx context.Context, id string) error {
	snap, err := r.svc.GetJob(ctx, id)
	if errors.Is(err, ErrNotFound) {
		r.metrics.poll("not_found")
		log.Printf("Job %s no longer exists on the server, evicting.", id)
		r.evict(id, nil, evictNotFound)
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.metrics.poll("error")
		log.Printf("Polling job %s failed: %v", id, err)
		return err
	}
	r.metrics.poll("ok")

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		// Cancelled or evicted while the request was in flight.
		return nil
	}
	s := *snap
	s.ID = id
	r.mergeLocked(e, s)
	r.updateActiveLocked()
	return nil
}

// mergeLocked replaces the tracked snapshot with snap unless snap is older.
// Status only moves forward, and a terminal status is never swapped for
// another. It reports whether snap was applied.
func (r *Registry) mergeLocked(e *entry, snap Job) bool {
	cur := e.job
	if snap.Status == "" {
		snap.Status = StatusPending
	}
	if snap.Status.rank() < cur.Status.rank() {
		log.Printf("Job %s: ignoring stale %s snapshot, already %s.", cur.ID, snap.Status, cur.Status)
		return false
	}
	if cur.Status.Terminal() && snap.Status != cur.Status {
		log.Printf("Job %s: ignoring %s snapshot, already %s.", cur.ID, snap.Status, cur.Status)
		return false
	}

	if snap.CreatedAt == 0 {
		snap.CreatedAt = cur.CreatedAt
	}
	if snap.Title == "" {
		snap.Title = cur.Title
	}
	if snap.RequestSummary == "" {
		snap.RequestSummary = cur.RequestSummary
	}
	e.job = snap

	if e.tracker != nil {
		e.tracker.observe(snap)
	}

	switch snap.Status {
	case StatusCompleted:
		e.blocks, e.resultErr = r.normalizeResult(snap)
		if e.resultErr != nil {
			log.Printf("Job %s: %v", snap.ID, e.resultErr)
		}
	case StatusFailed:
		e.blocks, e.resultErr = nil, nil
	}

	if !snap.Status.Terminal() {
		if cur.Status != snap.Status || cur.Progress != snap.Progress || cur.Message != snap.Message {
			r.events.Publish(Event{JobID: snap.ID, Type: EventTypeStatus, Status: snap.Status, Progress: snap.Progress, Message: snap.Message})
		}
		return true
	}

	firstTerminal := !cur.Status.Terminal()
	if e.poll != nil {
		e.poll.stop()
		e.poll = nil
	}
	if firstTerminal {
		log.Printf("Job %s finished with status %s.", snap.ID, snap.Status)
		r.scheduleEvictionLocked(e)
		if snap.Status == StatusCompleted {
			r.events.Publish(Event{JobID: snap.ID, Type: EventTypeResult, Status: snap.Status, Progress: snap.Progress, Message: snap.Message, Blocks: e.blocks})
		} else {
			r.events.Publish(Event{JobID: snap.ID, Type: EventTypeFailed, Status: snap.Status, Progress: snap.Progress, Message: snap.FailureMessage()})
		}
	}
	return true
}

// normalizeResult builds the display blocks of a completed job. Top-level URL
// fields take part so results that only carry them still show media.
func (r *Registry) normalizeResult(j Job) ([]normalize.Block, error) {
	urls := j.topLevelURLs()
	if len(j.Result) == 0 && len(urls) == 0 {
		return nil, nil
	}

	payload := normalize.Value{Kind: normalize.KindObject}
	if len(j.Result) > 0 {
		v, err := normalize.Parse(j.Result)
		if err != nil {
			return nil, err
		}
		if v.Kind == normalize.KindObject {
			payload = v
		} else if v.Kind != normalize.KindNull {
			payload.Members = append(payload.Members, normalize.Member{Key: "result", Value: v})
		}
	}

	for _, u := range urls {
		if u[0] == "url" {
			payload = setMember(payload, "url", normalize.String(u[1]))
			continue
		}
		payload = setMember(payload, u[0], normalize.Value{
			Kind:    normalize.KindObject,
			Members: []normalize.Member{{Key: "url", Value: normalize.String(u[1])}},
		})
	}
	return r.normalizer.NormalizeValue(payload), nil
}

func setMember(obj normalize.Value, key string, v normalize.Value) normalize.Value {
	members := make([]normalize.Member, 0, len(obj.Members)+1)
	replaced := false
	for _, m := range obj.Members {
		if m.Key == key {
			if !replaced {
				members = append(members, normalize.Member{Key: key, Value: v})
				replaced = true
			}
			continue
		}
		members = append(members, m)
	}
	if !replaced {
		members = append(members, normalize.Member{Key: key, Value: v})
	}
	obj.Members = members
	return obj
}

func (r *Registry) scheduleEvictionLocked(e *entry) {
	if e.evictTimer != nil {
		return
	}
	id := e.job.ID
	e.evictTimer = time.AfterFunc(r.cfg.Retention, func() {
		r.evict(id, e, evictRetention)
	})
}

// evict removes id. If want is non-nil, only that exact entry is removed, so a
// stale timer cannot drop a job that was re-registered in the meantime.
func (r *Registry) evict(id string, want *entry, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || (want != nil && e != want) {
		return false
	}
	r.removeLocked(e, reason)
	r.updateActiveLocked()
	return true
}

func (r *Registry) removeLocked(e *entry, reason string) {
	if e.poll != nil {
		e.poll.stop()
		e.poll = nil
	}
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
	e.tracker = nil
	delete(r.entries, e.job.ID)
	r.tombstones.Add(e.job.ID, struct{}{})
	r.metrics.evicted(reason)
	r.events.Publish(Event{JobID: e.job.ID, Type: EventTypeEvicted, Status: e.job.Status, Reason: reason})
	log.Printf("Job %s evicted (%s).", e.job.ID, reason)
}

// Cancel stops tracking id locally. The server keeps running the job.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	r.removeLocked(e, evictCancelled)
	r.updateActiveLocked()
	return nil
}

// RefreshAll reconciles the registry with the server's full job list. New
// jobs are added, known ones merged, and every non-terminal job ends up with
// exactly one poll loop. Jobs evicted earlier are not re-added.
func (r *Registry) RefreshAll(ctx context.Context) error {
	jobs, err := r.svc.ListJobs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Refreshing job list failed: %v", err)
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snap := range jobs {
		if snap.ID == "" || r.tombstones.Contains(snap.ID) {
			continue
		}
		e, ok := r.entries[snap.ID]
		if !ok {
			e = &entry{job: Job{ID: snap.ID, Status: StatusPending, CreatedAt: snap.CreatedAt}}
			r.entries[snap.ID] = e
		}
		r.mergeLocked(e, snap)
		if e.job.Status.Active() {
			r.startPollLocked(e)
		}
	}
	r.updateActiveLocked()
	return nil
}

// Get returns a copy of the tracked snapshot.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// List returns every tracked job, newest first.
func (r *Registry) List() []Job {
	return r.collect(func(Job) bool { return true })
}

// ListActive returns the pending and processing jobs, newest first.
func (r *Registry) ListActive() []Job {
	return r.collect(func(j Job) bool { return j.Status.Active() })
}

func (r *Registry) collect(keep func(Job) bool) []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e.job) {
			out = append(out, e.job)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt != out[k].CreatedAt {
			return out[i].CreatedAt > out[k].CreatedAt
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Result returns the display blocks of a completed job.
func (r *Registry) Result(id string) ([]normalize.Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	switch e.job.Status {
	case StatusCompleted:
		if e.resultErr != nil {
			return nil, e.resultErr
		}
		return append([]normalize.Block(nil), e.blocks...), nil
	case StatusFailed:
		return nil, &FailedError{JobID: id, Message: e.job.FailureMessage()}
	}
	return nil, fmt.Errorf("%w: %s is %s", ErrJobPending, id, e.job.Status)
}

// Track drives t from the job's snapshots until the job is evicted or
// cancelled. The current snapshot is applied right away.
func (r *Registry) Track(id string, t *progress.Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	e.tracker = &tracker{t: t}
	e.tracker.observe(e.job)
	return nil
}

func (r *Registry) updateActiveLocked() {
	n := 0
	for _, e := range r.entries {
		if e.job.Status.Active() {
			n++
		}
	}
	r.metrics.setActive(n)
}

// pollingCount is the number of live poll loops.
func (r *Registry) pollingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.poll != nil {
			n++
		}
	}
	return n
}
