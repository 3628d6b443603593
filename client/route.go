package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// DefaultParamKey is the route parameter holding the course id.
const DefaultParamKey = "id"

// Params is one snapshot of the route parameters.
type Params map[string]string

// ParamSource publishes route parameter snapshots, one per navigation.
// The zero value is ready to use and has no current snapshot.
type ParamSource struct {
	mu      sync.Mutex
	current Params
	subs    map[*paramQueue]struct{}
}

func NewParamSource(initial Params) *ParamSource {
	return &ParamSource{current: copyParams(initial), subs: make(map[*paramQueue]struct{})}
}

// Navigate makes p the current snapshot and delivers it to every subscriber. It never blocks.
func (s *ParamSource) Navigate(p Params) {
	p = copyParams(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
	for q := range s.subs {
		q.push(p)
	}
}

// Subscribe yields the current snapshot, then every later one in navigation order.
// The channel is closed once ctx is done.
func (s *ParamSource) Subscribe(ctx context.Context) <-chan Params {
	return s.subscribe(ctx, nil)
}

// subscribe is Subscribe with a stop signal: once stop is closed the queued snapshots
// are still delivered, then the channel is closed.
func (s *ParamSource) subscribe(ctx context.Context, stop <-chan struct{}) <-chan Params {
	q := &paramQueue{wake: make(chan struct{}, 1)}
	out := make(chan Params)

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[*paramQueue]struct{})
	}
	if s.current != nil {
		q.push(s.current)
	}
	s.subs[q] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, q)
			s.mu.Unlock()
		}()

		for {
			p, ok := q.pop()
			if !ok {
				select {
				case <-q.wake:
					continue
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// paramQueue is an unbounded FIFO so Navigate never waits on a slow subscriber.
type paramQueue struct {
	mu    sync.Mutex
	items []Params
	wake  chan struct{}
}

func (q *paramQueue) push(p Params) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *paramQueue) pop() (Params, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

func copyParams(p Params) Params {
	if p == nil {
		return nil
	}
	cp := make(Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// LoadFunc loads the resource named by a route parameter.
type LoadFunc func(ctx context.Context, id string) error

// Subscription is the handle returned by Listen. Close must be called to release it.
type Subscription struct {
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

// Listen calls load for every snapshot of src carrying key (DefaultParamKey when empty).
// Loads run concurrently; a newer snapshot does not cancel older loads.
func Listen(ctx context.Context, src *ParamSource, key string, load LoadFunc) *Subscription {
	if key == "" {
		key = DefaultParamKey
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, stop: make(chan struct{})}
	params := src.subscribe(ctx, sub.stop)

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for p := range params {
			id, ok := p[key]
			if !ok {
				continue
			}
			sub.wg.Add(1)
			go func(id string) {
				defer sub.wg.Done()
				sub.record(load(ctx, id))
			}(id)
		}
	}()
	return sub
}

func (s *Subscription) record(err error) {
	if err == nil || errors.Cause(err) == ErrSuperseded {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Err returns the last load failure, superseded loads excluded.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Drain stops listening once the snapshots already navigated to are handed out,
// then waits for every load to finish. Loads are not cancelled.
func (s *Subscription) Drain() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Close stops listening, cancels in-flight loads and waits for them to return.
func (s *Subscription) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.cancel()
	s.wg.Wait()
}
