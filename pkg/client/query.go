package client

import (
	"context"
	"sync"
	"time"
)

const DefaultRefetchInterval = 2 * time.Second

// ProjectFetcher is the read side of Client that a ProjectQuery polls.
type ProjectFetcher interface {
	GetProject(ctx context.Context, id int) (*Project, error)
}

// Snapshot is the query state handed to observers after every fetch.
type Snapshot struct {
	ID   int
	Data *Project
	Err  error
}

// ShouldRefetch reports whether a project in status still needs polling.
func ShouldRefetch(status Status) bool {
	return status == StatusPending || status == StatusProcessing
}

// ProjectQuery tracks the single active project and polls it while it is in flight.
// A query without an active id is disabled and performs no requests.
type ProjectQuery struct {
	fetcher  ProjectFetcher
	interval time.Duration
	onChange func(Snapshot)

	mu   sync.Mutex
	id   *int
	data *Project
	err  error

	wake chan struct{}
}

type QueryOption func(*ProjectQuery)

// WithRefetchInterval overrides the 2s polling interval.
func WithRefetchInterval(d time.Duration) QueryOption {
	return func(q *ProjectQuery) { q.interval = d }
}

// OnChange registers a callback invoked after every fetch, from the goroutine that fetched.
func OnChange(fn func(Snapshot)) QueryOption {
	return func(q *ProjectQuery) { q.onChange = fn }
}

func NewProjectQuery(fetcher ProjectFetcher, opts ...QueryOption) *ProjectQuery {
	q := &ProjectQuery{
		fetcher:  fetcher,
		interval: DefaultRefetchInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetActive makes id the active project, discarding state held for a previous one.
func (q *ProjectQuery) SetActive(id int) {
	q.mu.Lock()
	if q.id == nil || *q.id != id {
		q.data = nil
		q.err = nil
	}
	q.id = &id
	q.mu.Unlock()
	q.nudge()
}

// Clear disables the query; a running poll loop returns.
func (q *ProjectQuery) Clear() {
	q.mu.Lock()
	q.id = nil
	q.data = nil
	q.err = nil
	q.mu.Unlock()
	q.nudge()
}

// ActiveID returns the active project id, if any.
func (q *ProjectQuery) ActiveID() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.id == nil {
		return 0, false
	}
	return *q.id, true
}

// Data returns the last successfully fetched project and the last fetch error.
func (q *ProjectQuery) Data() (*Project, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data, q.err
}

// Refetch fetches the active project now. It is a no-op returning nil, nil when disabled.
func (q *ProjectQuery) Refetch(ctx context.Context) (*Project, error) {
	id, ok := q.ActiveID()
	if !ok {
		return nil, nil
	}

	p, err := q.fetcher.GetProject(ctx, id)

	q.mu.Lock()
	if q.id == nil || *q.id != id {
		// the active project changed while the request was in flight
		q.mu.Unlock()
		return p, err
	}
	if err == nil {
		q.data = p
	}
	q.err = err
	snap := Snapshot{ID: id, Data: q.data, Err: err}
	q.mu.Unlock()

	if q.onChange != nil {
		q.onChange(snap)
	}
	return p, err
}

// Invalidate marks the cached project stale: it re-fetches immediately and restarts the
// polling interval of a running loop.
func (q *ProjectQuery) Invalidate(ctx context.Context) error {
	_, err := q.Refetch(ctx)
	q.nudge()
	return err
}

// Run polls the active project every refetch interval while its last known status is
// pending or processing. It returns nil once a terminal status is observed or the query
// is cleared, the fetch error when there is no project data to keep polling on, or
// ctx.Err().
func (q *ProjectQuery) Run(ctx context.Context) error {
	fetched := false

	timer := time.NewTimer(q.interval)
	defer timer.Stop()

	for {
		if _, ok := q.ActiveID(); !ok {
			return nil
		}

		data, _ := q.Data()
		if data == nil || !fetched {
			if _, err := q.Refetch(ctx); err != nil {
				if data, _ := q.Data(); data == nil {
					return err
				}
			}
			fetched = true
			resetTimer(timer, q.interval)
			continue
		}
		if !ShouldRefetch(data.Status) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
			resetTimer(timer, q.interval)
		case <-timer.C:
			q.Refetch(ctx)
			timer.Reset(q.interval)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (q *ProjectQuery) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
