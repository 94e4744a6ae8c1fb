package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"authgate.dev/internal/obs"
)

const (
	defaultBuffer   = 256
	defaultExtraMax = 2048

	appendTimeout = 5 * time.Second
)

// Store appends immutable audit events.
type Store interface {
	Append(ctx context.Context, event *Event) error
}

// RequestInfo is the slice of the transport request the recorder consumes.
type RequestInfo struct {
	Route     string
	Method    string
	ClientIP  string
	UserAgent string
}

// Recorder buffers events on a channel drained by a background worker.
// Record never blocks: when the buffer is full the event is dropped and
// counted. Append failures are swallowed after logging.
type Recorder struct {
	store    Store
	extraMax int
	now      func() time.Time

	ch        chan *Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder and starts its worker.
func NewRecorder(store Store, buffer, extraMax int, opts ...RecorderOption) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if extraMax <= 0 {
		extraMax = defaultExtraMax
	}
	r := &Recorder{
		store:    store,
		extraMax: extraMax,
		now:      time.Now,
		ch:       make(chan *Event, buffer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues one event and returns immediately. The caller's response
// never waits for the write.
func (r *Recorder) Record(kind Kind, req RequestInfo, statusCode int, subjectID int64, principalType string, extra map[string]any) {
	if r == nil || r.closed.Load() {
		return
	}
	now := r.now().UTC()
	ev := &Event{
		ID:            newEventID(now),
		Kind:          kind,
		SubjectID:     subjectID,
		PrincipalType: principalType,
		Route:         req.Route,
		Method:        req.Method,
		StatusCode:    statusCode,
		ClientIP:      req.ClientIP,
		UserAgent:     req.UserAgent,
		Extra:         r.encodeExtra(extra),
		OccurredAt:    now,
	}
	select {
	case r.ch <- ev:
	case <-r.done:
	default:
		r.dropped.Add(1)
		obs.ObserveAuditDropped()
	}
}

// Dropped returns how many events were discarded due to a full buffer.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close stops the recorder after draining buffered events.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.ch:
			r.append(ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.ch:
					r.append(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) append(ev *Event) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, ev); err != nil {
		obs.Error("audit append failed", err, map[string]any{"kind": string(ev.Kind)})
	}
}

// encodeExtra serializes extra and truncates past the ceiling, preserving at
// least partial diagnostic context instead of rejecting the event.
func (r *Recorder) encodeExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > r.extraMax {
		s = s[:r.extraMax]
	}
	return s
}
