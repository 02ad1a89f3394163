package store

import (
	"context"
	"sync"

	"github.com/giygas/healthpost-api/interfaces"
)

type listener struct {
	path string
	fn   interfaces.ChangeFunc
}

// fanout keeps the subscribers of one store instance.
type fanout struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]listener
}

func newFanout() *fanout {
	return &fanout{subs: make(map[uint64]listener)}
}

// add registers fn and returns an idempotent cancel function. The
// subscription also ends when ctx is done.
func (f *fanout) add(ctx context.Context, path string, fn interfaces.ChangeFunc) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = listener{path: path, fn: fn}
	f.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(stop)
		})
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-stop:
			}
		}()
	}
	return cancel
}

// matching returns the listeners interested in any of the changed paths.
func (f *fanout) matching(changed []string) []listener {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []listener
	for _, l := range f.subs {
		for _, c := range changed {
			if Related(l.path, c) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func (f *fanout) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// notify delivers fresh values to every interested listener, reading each
// subscribed path once.
func (f *fanout) notify(changed []string, read func(path string) (any, bool, error)) {
	for _, l := range f.matching(changed) {
		v, ok, err := read(l.path)
		if err != nil {
			continue
		}
		l.fn(interfaces.Change{Path: l.path, Value: v, Exists: ok})
	}
}
