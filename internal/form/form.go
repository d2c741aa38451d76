package form

import (
	"context"
	"errors"

	"brdconsole.org/internal/apiclient"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

// Mode tells a form whether it creates a record or edits one.
type Mode int

const (
	Create Mode = iota
	Edit
)

// Draft is the page-local editable copy of a record.
type Draft map[string]any

// Values renders every field as text for the validation table.
func (d Draft) Values() map[string]string {
	out := make(map[string]string, len(d))
	for k, v := range d {
		out[k] = resource.Stringify(v)
	}
	return out
}

// Clone returns an independent copy.
func (d Draft) Clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Mapper turns a validated draft into the request payload. Returning a
// *validate.FieldError marks the form Invalid instead of Failed.
type Mapper func(Draft) (map[string]any, error)

// Saver is the part of a resource service a form uses.
type Saver[T any] interface {
	Create(ctx context.Context, payload any) (T, error)
	Update(ctx context.Context, id string, payload any) (T, error)
}

// Config wires a form to its service and page behaviour.
type Config[T any] struct {
	Saver Saver[T]
	Rules validate.Table
	// CollectAll reports every failing field instead of the first one.
	CollectAll bool
	// Mapper defaults to sending the draft unchanged.
	Mapper Mapper
	// Navigator and SuccessRoute move the console after a save.
	Navigator    Navigator
	SuccessRoute string
	// OnSuccess runs after a save and before navigation, e.g. to reload a
	// list shown next to the form.
	OnSuccess func(ctx context.Context, saved T) error
}

// Controller is a create/edit form: Idle → Submitting → Success | Failed,
// or Invalid when local validation stops the submission.
type Controller[T any] struct {
	cfg         Config[T]
	mode        Mode
	id          string
	draft       Draft
	state       State
	err         error
	fieldErrors map[string]string
	saved       T
}

// NewCreate starts an empty form. initial seeds default field values.
func NewCreate[T any](cfg Config[T], initial Draft) *Controller[T] {
	d := Draft{}
	if initial != nil {
		d = initial.Clone()
	}
	return &Controller[T]{cfg: cfg, mode: Create, draft: d}
}

// NewEdit starts a form over a copy of an existing record.
func NewEdit[T any](cfg Config[T], id string, existing map[string]any) *Controller[T] {
	return &Controller[T]{cfg: cfg, mode: Edit, id: id, draft: Draft(existing).Clone()}
}

func (c *Controller[T]) Mode() Mode   { return c.mode }
func (c *Controller[T]) State() State { return c.state }
func (c *Controller[T]) Err() error   { return c.err }
func (c *Controller[T]) Saved() T     { return c.saved }

// Draft returns a copy of the current draft.
func (c *Controller[T]) Draft() Draft { return c.draft.Clone() }

// FieldErrors returns the messages shown next to each field.
func (c *Controller[T]) FieldErrors() map[string]string {
	out := make(map[string]string, len(c.fieldErrors))
	for k, v := range c.fieldErrors {
		out[k] = v
	}
	return out
}

// Set updates one draft field and clears its error.
func (c *Controller[T]) Set(field string, value any) {
	c.draft[field] = value
	delete(c.fieldErrors, field)
}

// Validate runs the rules table without submitting.
func (c *Controller[T]) Validate() error {
	values := c.draft.Values()
	var err error
	if c.cfg.CollectAll {
		err = c.cfg.Rules.ValidateAll(values)
	} else {
		err = c.cfg.Rules.Validate(values)
	}
	c.fieldErrors = fieldErrorsOf(err)
	return err
}

// Submit validates the draft and, when it passes, sends exactly one create
// or update request. The draft survives a failure so it can be corrected.
func (c *Controller[T]) Submit(ctx context.Context) (T, error) {
	var zero T
	if c.state == Submitting {
		return zero, ErrBusy
	}
	if err := c.Validate(); err != nil {
		c.state = Invalid
		c.err = err
		return zero, err
	}

	payload := map[string]any(c.draft.Clone())
	if c.cfg.Mapper != nil {
		mapped, err := c.cfg.Mapper(c.draft.Clone())
		if err != nil {
			var fe *validate.FieldError
			if errors.As(err, &fe) {
				c.fieldErrors = map[string]string{fe.Field: fe.Message}
				c.state = Invalid
			} else {
				c.state = Failed
			}
			c.err = err
			return zero, err
		}
		payload = mapped
	}

	c.state = Submitting
	c.err = nil
	var (
		saved T
		err   error
	)
	if c.mode == Edit {
		saved, err = c.cfg.Saver.Update(ctx, c.id, payload)
	} else {
		saved, err = c.cfg.Saver.Create(ctx, payload)
	}
	if err != nil {
		c.state = Failed
		c.err = err
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && len(apiErr.FieldErrors) > 0 {
			c.fieldErrors = make(map[string]string, len(apiErr.FieldErrors))
			for k, msgs := range apiErr.FieldErrors {
				c.fieldErrors[k] = msgs[0]
			}
		}
		return zero, err
	}

	c.saved = saved
	c.state = Success
	if c.cfg.OnSuccess != nil {
		if err := c.cfg.OnSuccess(ctx, saved); err != nil {
			c.err = err
		}
	}
	if c.cfg.Navigator != nil && c.cfg.SuccessRoute != "" {
		c.cfg.Navigator.Navigate(c.cfg.SuccessRoute)
	}
	return saved, nil
}

func fieldErrorsOf(err error) map[string]string {
	if err == nil {
		return nil
	}
	var all validate.Errors
	if errors.As(err, &all) {
		return all.Map()
	}
	var fe *validate.FieldError
	if errors.As(err, &fe) {
		return map[string]string{fe.Field: fe.Message}
	}
	return nil
}
