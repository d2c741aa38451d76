package form

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"brdconsole.org/internal/obs"
)

// Lister is the part of a resource service a list page uses.
type Lister[T any] interface {
	List(ctx context.Context, filters url.Values) ([]T, error)
	Delete(ctx context.Context, id string) error
}

// ListController drives a list page: Idle → Loading → Ready, plus the
// RequestDelete → Confirm flow for removing a row.
type ListController[T any] struct {
	svc     Lister[T]
	idOf    func(T) string
	logger  zerolog.Logger
	Filters url.Values

	state       State
	items       []T
	err         error
	deleteState DeleteState
	pendingID   string
}

// NewList builds a list controller. idOf extracts the identifier used for
// deletion and local removal.
func NewList[T any](svc Lister[T], idOf func(T) string) *ListController[T] {
	return &ListController[T]{
		svc:    svc,
		idOf:   idOf,
		logger: obs.Logger().With().Str("component", "list").Logger(),
	}
}

func (c *ListController[T]) State() State             { return c.state }
func (c *ListController[T]) DeleteState() DeleteState { return c.deleteState }
func (c *ListController[T]) Err() error               { return c.err }
func (c *ListController[T]) PendingID() string        { return c.pendingID }

// Items returns a copy of the loaded rows.
func (c *ListController[T]) Items() []T {
	return append([]T(nil), c.items...)
}

// Load fetches the rows. On failure the page still becomes Ready, with an
// empty list and the error recorded; there is no retry.
func (c *ListController[T]) Load(ctx context.Context) error {
	c.state = Loading
	c.err = nil
	items, err := c.svc.List(ctx, c.Filters)
	c.state = Ready
	if err != nil {
		c.items = nil
		c.err = err
		c.logger.Error().Err(err).Msg("load list")
		return err
	}
	c.items = items
	return nil
}

// RequestDelete marks a row for deletion pending confirmation.
func (c *ListController[T]) RequestDelete(id string) {
	c.pendingID = strings.TrimSpace(id)
	c.deleteState = PendingDelete
}

// Cancel abandons a pending deletion.
func (c *ListController[T]) Cancel() {
	c.pendingID = ""
	c.deleteState = NoDelete
}

// Confirm deletes the pending row. On success the row is dropped from the
// local list; on failure the list is left untouched.
func (c *ListController[T]) Confirm(ctx context.Context) error {
	if c.deleteState != PendingDelete || c.pendingID == "" {
		return ErrNoPendingDelete
	}
	id := c.pendingID
	c.deleteState = Confirmed
	if err := c.svc.Delete(ctx, id); err != nil {
		c.err = err
		c.deleteState = NoDelete
		c.pendingID = ""
		c.logger.Error().Err(err).Str("id", id).Msg("delete row")
		return err
	}
	kept := c.items[:0:0]
	for _, item := range c.items {
		if c.idOf(item) != id {
			kept = append(kept, item)
		}
	}
	c.items = kept
	c.pendingID = ""
	c.deleteState = Deleted
	return nil
}

// Getter is the part of a resource service a detail page uses.
type Getter[T any] interface {
	Get(ctx context.Context, id string) (T, error)
}

// DetailController drives a read-only detail page.
type DetailController[T any] struct {
	svc   Getter[T]
	state State
	item  T
	err   error
}

func NewDetail[T any](svc Getter[T]) *DetailController[T] {
	return &DetailController[T]{svc: svc}
}

func (c *DetailController[T]) State() State { return c.state }
func (c *DetailController[T]) Item() T      { return c.item }
func (c *DetailController[T]) Err() error   { return c.err }

// Load fetches one record.
func (c *DetailController[T]) Load(ctx context.Context, id string) (T, error) {
	c.state = Loading
	item, err := c.svc.Get(ctx, id)
	c.state = Ready
	c.err = err
	if err == nil {
		c.item = item
	}
	return item, err
}
