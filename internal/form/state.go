// Package form implements the console's page controllers: list, detail and
// create/edit forms, each a small state machine over a resource service.
// A controller belongs to one goroutine, the way a page belongs to the UI
// thread; none of them is safe for concurrent use.
package form

import (
	"errors"
	"sync"
)

// State is a controller's lifecycle position.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Submitting
	Success
	Failed
	Invalid
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// DeleteState tracks the confirm-before-delete flow of a list.
type DeleteState int

const (
	NoDelete DeleteState = iota
	PendingDelete
	Confirmed
	Deleted
)

func (s DeleteState) String() string {
	switch s {
	case NoDelete:
		return "none"
	case PendingDelete:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

var (
	ErrNoPendingDelete = errors.New("no delete awaiting confirmation")
	ErrBusy            = errors.New("submission already in progress")
)

// Navigator moves the console to another route after a successful action.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// RecordingNavigator remembers every route it was sent to. The CLI uses it
// to report where a page would go next; tests use it to assert navigation.
type RecordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (r *RecordingNavigator) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Routes returns the visited routes in order.
func (r *RecordingNavigator) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

// Last returns the most recent route or "".
func (r *RecordingNavigator) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}
