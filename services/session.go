package services

import (
	"sync"

	"live-requests/models"
	"live-requests/monitoring"
)

// SessionCallbacks are invoked after a delta has been merged into the
// session's local state. All callbacks are optional.
type SessionCallbacks struct {
	OnInsert func(models.Request)
	OnUpdate func(models.Request)
	OnDelete func(models.Request)
}

// Session is one viewer's live mirror of an event's request set. Deltas
// from the Bus are reconciled into a local map; the queue view is
// re-derived from that map on demand, never patched. Server deltas are
// the sole source of truth: whatever the session held locally is
// replaced by what the store committed.
type Session struct {
	eventID string

	mu       sync.RWMutex
	requests map[string]models.Request
	watchers map[string][]func(models.Request)

	callbacks SessionCallbacks
	monitor   *monitoring.Monitor

	cancel func()
	once   sync.Once
}

// OpenSession subscribes to the event's deltas and returns the live
// session. Callers should seed it with a full read via Reconcile, since
// deltas sent before the subscription are not replayed. A nil monitor
// skips gauge tracking.
func OpenSession(bus Bus, eventID string, callbacks SessionCallbacks, monitor *monitoring.Monitor) (*Session, error) {
	s := &Session{
		eventID:   eventID,
		requests:  make(map[string]models.Request),
		watchers:  make(map[string][]func(models.Request)),
		callbacks: callbacks,
		monitor:   monitor,
	}

	cancel, err := bus.Subscribe(eventID, s.apply)
	if err != nil {
		return nil, err
	}
	s.cancel = cancel
	s.monitor.SessionOpened()

	return s, nil
}

// Reconcile replaces the local set with a fresh full read, used on first
// load and after a dropped connection.
func (s *Session) Reconcile(requests []models.Request) {
	s.mu.Lock()
	s.requests = make(map[string]models.Request, len(requests))
	for _, r := range requests {
		s.requests[r.ID] = r
	}
	fired := s.dueWatchersLocked()
	s.mu.Unlock()

	for _, fire := range fired {
		fire()
	}
}

func (s *Session) apply(delta Delta) {
	req := delta.Request
	if req.EventID != s.eventID {
		return
	}

	s.mu.Lock()

	var notify func(models.Request)
	switch delta.Kind {
	case DeltaInsert:
		s.requests[req.ID] = req
		notify = s.callbacks.OnInsert
	case DeltaUpdate:
		// An update for a row we have not seen yet is an implicit
		// insert: insert/update delivery is not exactly-once-ordered
		// across the insert/update boundary for a fresh row.
		if _, ok := s.requests[req.ID]; !ok {
			s.requests[req.ID] = req
			notify = s.callbacks.OnInsert
		} else {
			s.requests[req.ID] = req
			notify = s.callbacks.OnUpdate
		}
	case DeltaDelete:
		delete(s.requests, req.ID)
		notify = s.callbacks.OnDelete
	default:
		s.mu.Unlock()
		return
	}

	fired := s.dueWatchersLocked()
	s.mu.Unlock()

	if notify != nil {
		notify(req)
	}
	for _, fire := range fired {
		fire()
	}
}

// Snapshot returns a copy of the current request set.
func (s *Session) Snapshot() []models.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	return out
}

// View derives the three queue buckets from the current set.
func (s *Session) View() models.QueueView {
	return ProjectQueue(s.Snapshot())
}

// WatchPayment registers fn to run once when the request's payment
// status reaches PAID. Fires immediately if it already has. This is the
// submitter-side wait for payment confirmation; it has no engine-level
// timeout.
func (s *Session) WatchPayment(requestID string, fn func(models.Request)) {
	s.mu.Lock()

	if r, ok := s.requests[requestID]; ok && r.PaymentStatus == models.PaymentPaid {
		s.mu.Unlock()
		fn(r)
		return
	}

	s.watchers[requestID] = append(s.watchers[requestID], fn)
	s.mu.Unlock()
}

// dueWatchersLocked collects watcher invocations for requests that are
// now PAID. Must be called with mu held; the returned closures are run
// after unlocking.
func (s *Session) dueWatchersLocked() []func() {
	var fired []func()
	for id, fns := range s.watchers {
		r, ok := s.requests[id]
		if !ok || r.PaymentStatus != models.PaymentPaid {
			continue
		}
		for _, fn := range fns {
			fn, r := fn, r
			fired = append(fired, func() { fn(r) })
		}
		delete(s.watchers, id)
	}
	return fired
}

// Close cancels the subscription. Idempotent; never panics once the
// underlying connection is already gone.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.monitor.SessionClosed()
	})
}
