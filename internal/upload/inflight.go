package upload

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Phase is the coordinator step an in-flight upload has reached.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseConnect   Phase = "connect"
	PhaseDirect    Phase = "direct"
	PhaseStaging   Phase = "staging"
	PhaseCombine   Phase = "combine"
	PhaseSchedule  Phase = "schedule"
	PhaseAwait     Phase = "await"
	PhaseReconcile Phase = "reconcile"
)

// PendingUpload tracks one upload holding a name lock.
type PendingUpload struct {
	OpID      string
	Router    string
	Name      string
	Phase     Phase
	Attempts  int
	StartedAt time.Time
	UpdatedAt time.Time
	LastError string
}

type slot struct {
	sem     chan struct{}
	waiters int
	item    PendingUpload
	held    bool
}

// Inflight serializes uploads of the same (router, script) and records
// their progress by stable key.
type Inflight struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewInflight() *Inflight {
	return &Inflight{slots: make(map[string]*slot)}
}

func inflightKey(router, name string) string {
	return strings.TrimSpace(router) + "\x00" + strings.TrimSpace(name)
}

// Acquire blocks until the (router, name) slot is free or ctx ends. The
// returned release must be called exactly once.
func (f *Inflight) Acquire(ctx context.Context, item PendingUpload) (func(), error) {
	key := inflightKey(item.Router, item.Name)
	f.mu.Lock()
	s, ok := f.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		f.slots[key] = s
	}
	s.waiters++
	f.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		f.mu.Lock()
		s.waiters--
		if s.waiters == 0 {
			delete(f.slots, key)
		}
		f.mu.Unlock()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	s.held = true
	s.item = item
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			s.held = false
			s.item = PendingUpload{}
			s.waiters--
			if s.waiters == 0 {
				delete(f.slots, key)
			}
			f.mu.Unlock()
			<-s.sem
		})
	}, nil
}

// MarkPhase advances the recorded phase of a held slot.
func (f *Inflight) MarkPhase(router, name string, phase Phase, at time.Time) (PendingUpload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[inflightKey(router, name)]
	if !ok || !s.held {
		return PendingUpload{}, false
	}
	s.item.Phase = phase
	s.item.Attempts++
	s.item.UpdatedAt = at
	return s.item, true
}

func (f *Inflight) MarkError(router, name string, lastErr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.slots[inflightKey(router, name)]; ok && s.held {
		s.item.LastError = strings.TrimSpace(lastErr)
	}
}

func (f *Inflight) Get(router, name string) (PendingUpload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[inflightKey(router, name)]
	if !ok || !s.held {
		return PendingUpload{}, false
	}
	return s.item, true
}

func (f *Inflight) List() []PendingUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PendingUpload, 0, len(f.slots))
	for _, s := range f.slots {
		if s.held {
			out = append(out, s.item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Router != out[j].Router {
			return out[i].Router < out[j].Router
		}
		return out[i].Name < out[j].Name
	})
	return out
}
