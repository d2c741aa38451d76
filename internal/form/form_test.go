package form

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"brdconsole.org/internal/apiclient"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

type stubService struct {
	listFn   func(context.Context, url.Values) ([]resource.Record, error)
	deleteFn func(context.Context, string) error
	getFn    func(context.Context, string) (resource.Record, error)
	createFn func(context.Context, any) (resource.Record, error)
	updateFn func(context.Context, string, any) (resource.Record, error)

	creates, updates, deletes int
}

func (s *stubService) List(ctx context.Context, f url.Values) ([]resource.Record, error) {
	if s.listFn != nil {
		return s.listFn(ctx, f)
	}
	return nil, nil
}

func (s *stubService) Delete(ctx context.Context, id string) error {
	s.deletes++
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *stubService) Get(ctx context.Context, id string) (resource.Record, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return resource.Record{"id": id}, nil
}

func (s *stubService) Create(ctx context.Context, payload any) (resource.Record, error) {
	s.creates++
	if s.createFn != nil {
		return s.createFn(ctx, payload)
	}
	return resource.Record{"id": 1.0}, nil
}

func (s *stubService) Update(ctx context.Context, id string, payload any) (resource.Record, error) {
	s.updates++
	if s.updateFn != nil {
		return s.updateFn(ctx, id, payload)
	}
	return resource.Record{"id": id}, nil
}

func recordID(r resource.Record) string { return r.ID() }

func threeRows(context.Context, url.Values) ([]resource.Record, error) {
	return []resource.Record{{"id": 1.0}, {"id": 2.0}, {"id": 3.0}}, nil
}

func TestListLoadAndDelete(t *testing.T) {
	svc := &stubService{listFn: threeRows}
	c := NewList[resource.Record](svc, recordID)
	if c.State() != Idle {
		t.Fatalf("expected idle, got %s", c.State())
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.State() != Ready || len(c.Items()) != 3 {
		t.Fatalf("unexpected state %s with %d items", c.State(), len(c.Items()))
	}

	if err := c.Confirm(context.Background()); !errors.Is(err, ErrNoPendingDelete) {
		t.Fatalf("expected ErrNoPendingDelete, got %v", err)
	}

	c.RequestDelete("2")
	if c.DeleteState() != PendingDelete {
		t.Fatalf("expected pending, got %s", c.DeleteState())
	}
	if svc.deletes != 0 {
		t.Fatal("delete must wait for confirmation")
	}
	if err := c.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if c.DeleteState() != Deleted {
		t.Fatalf("expected deleted, got %s", c.DeleteState())
	}
	for _, item := range c.Items() {
		if item.ID() == "2" {
			t.Fatal("deleted row still listed")
		}
	}
	if len(c.Items()) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(c.Items()))
	}
}

func TestListCancelDelete(t *testing.T) {
	svc := &stubService{listFn: threeRows}
	c := NewList[resource.Record](svc, recordID)
	_ = c.Load(context.Background())
	c.RequestDelete("1")
	c.Cancel()
	if c.DeleteState() != NoDelete || c.PendingID() != "" {
		t.Fatalf("cancel did not reset: %s %q", c.DeleteState(), c.PendingID())
	}
	if err := c.Confirm(context.Background()); !errors.Is(err, ErrNoPendingDelete) {
		t.Fatalf("expected ErrNoPendingDelete after cancel, got %v", err)
	}
	if svc.deletes != 0 {
		t.Fatal("cancelled delete reached the service")
	}
}

func TestListDeleteFailureKeepsRows(t *testing.T) {
	svc := &stubService{
		listFn:   threeRows,
		deleteFn: func(context.Context, string) error { return errors.New("boom") },
	}
	c := NewList[resource.Record](svc, recordID)
	_ = c.Load(context.Background())
	c.RequestDelete("3")
	if err := c.Confirm(context.Background()); err == nil {
		t.Fatal("expected delete error")
	}
	if len(c.Items()) != 3 || c.Err() == nil {
		t.Fatalf("rows changed or error lost: %d %v", len(c.Items()), c.Err())
	}
}

func TestListLoadFailureEndsReady(t *testing.T) {
	svc := &stubService{listFn: func(context.Context, url.Values) ([]resource.Record, error) {
		return nil, errors.New("offline")
	}}
	c := NewList[resource.Record](svc, recordID)
	if err := c.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if c.State() != Ready || len(c.Items()) != 0 || c.Err() == nil {
		t.Fatalf("unexpected state after failure: %s %d %v", c.State(), len(c.Items()), c.Err())
	}
}

func TestDetailLoad(t *testing.T) {
	d := NewDetail[resource.Record](&stubService{})
	item, err := d.Load(context.Background(), "8")
	if err != nil || item.ID() != "8" || d.State() != Ready {
		t.Fatalf("Load: %v %v %s", item, err, d.State())
	}
}

func phoneRules() validate.Table {
	return validate.NewTable(
		validate.F("name", validate.Required("Name")),
		validate.F("phone", validate.Required("Phone"), validate.Phone()),
	)
}

func TestFormInvalidMakesNoCall(t *testing.T) {
	svc := &stubService{}
	nav := &RecordingNavigator{}
	c := NewCreate[resource.Record](Config[resource.Record]{
		Saver: svc, Rules: phoneRules(), Navigator: nav, SuccessRoute: "/done",
	}, nil)
	c.Set("name", "Acme")
	c.Set("phone", "123")

	_, err := c.Submit(context.Background())
	var fe *validate.FieldError
	if !errors.As(err, &fe) || fe.Field != "phone" {
		t.Fatalf("expected phone field error, got %v", err)
	}
	if c.State() != Invalid {
		t.Fatalf("expected invalid, got %s", c.State())
	}
	if svc.creates != 0 {
		t.Fatal("invalid form reached the service")
	}
	if nav.Last() != "" {
		t.Fatalf("invalid form navigated to %q", nav.Last())
	}
	if _, ok := c.FieldErrors()["phone"]; !ok {
		t.Fatal("phone error not exposed")
	}

	c.Set("phone", "9876543210")
	if _, ok := c.FieldErrors()["phone"]; ok {
		t.Fatal("Set must clear the field error")
	}
}

func TestFormCreateSuccess(t *testing.T) {
	var sent any
	svc := &stubService{createFn: func(_ context.Context, p any) (resource.Record, error) {
		sent = p
		return resource.Record{"id": 10.0}, nil
	}}
	nav := &RecordingNavigator{}
	reloaded := false
	c := NewCreate[resource.Record](Config[resource.Record]{
		Saver: svc,
		Rules: phoneRules(),
		Mapper: func(d Draft) (map[string]any, error) {
			return map[string]any{"title": d["name"], "phone": d["phone"]}, nil
		},
		Navigator:    nav,
		SuccessRoute: "/list",
		OnSuccess: func(context.Context, resource.Record) error {
			reloaded = true
			return nil
		},
	}, Draft{"name": "Acme"})
	c.Set("phone", "9876543210")

	saved, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if saved.ID() != "10" || c.State() != Success {
		t.Fatalf("unexpected result %v %s", saved, c.State())
	}
	payload := sent.(map[string]any)
	if payload["title"] != "Acme" || payload["phone"] != "9876543210" || len(payload) != 2 {
		t.Fatalf("unexpected payload %v", payload)
	}
	if svc.creates != 1 || svc.updates != 0 {
		t.Fatalf("expected one create, got %d creates %d updates", svc.creates, svc.updates)
	}
	if !reloaded || nav.Last() != "/list" {
		t.Fatalf("post-save hooks not run: reloaded=%v route=%q", reloaded, nav.Last())
	}
}

func TestFormEditUsesUpdate(t *testing.T) {
	var gotID string
	svc := &stubService{updateFn: func(_ context.Context, id string, _ any) (resource.Record, error) {
		gotID = id
		return resource.Record{"id": id}, nil
	}}
	existing := map[string]any{"id": 4.0, "name": "Old", "phone": "9876543210"}
	c := NewEdit[resource.Record](Config[resource.Record]{Saver: svc, Rules: phoneRules()}, "4", existing)
	c.Set("name", "New")
	if existing["name"] != "Old" {
		t.Fatal("editing the draft mutated the source record")
	}
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotID != "4" || svc.creates != 0 {
		t.Fatalf("expected update of 4, got id=%q creates=%d", gotID, svc.creates)
	}
}

func TestFormBackendRejectionKeepsDraft(t *testing.T) {
	svc := &stubService{createFn: func(context.Context, any) (resource.Record, error) {
		return nil, &apiclient.APIError{
			StatusCode:  http.StatusBadRequest,
			Message:     "email: taken",
			FieldErrors: map[string][]string{"email": {"taken"}},
		}
	}}
	nav := &RecordingNavigator{}
	c := NewCreate[resource.Record](Config[resource.Record]{Saver: svc, Navigator: nav, SuccessRoute: "/x"}, Draft{"email": "a@b.com"})
	if _, err := c.Submit(context.Background()); !errors.Is(err, apiclient.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if c.State() != Failed || c.Draft()["email"] != "a@b.com" {
		t.Fatalf("unexpected state %s draft %v", c.State(), c.Draft())
	}
	if c.FieldErrors()["email"] != "taken" {
		t.Fatalf("backend field error not surfaced: %v", c.FieldErrors())
	}
	if nav.Last() != "" {
		t.Fatal("failed save must not navigate")
	}
}

func TestFormMapperFieldError(t *testing.T) {
	svc := &stubService{}
	c := NewCreate[resource.Record](Config[resource.Record]{
		Saver: svc,
		Mapper: func(d Draft) (map[string]any, error) {
			if _, err := strconv.ParseFloat(resource.Stringify(d["limit"]), 64); err != nil {
				return nil, &validate.FieldError{Field: "limit", Message: "must be a number"}
			}
			return d, nil
		},
	}, Draft{"limit": "abc"})
	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected mapper error")
	}
	if c.State() != Invalid || svc.creates != 0 {
		t.Fatalf("expected invalid without a call, got %s creates=%d", c.State(), svc.creates)
	}
}

func TestFormCollectAll(t *testing.T) {
	c := NewCreate[resource.Record](Config[resource.Record]{Saver: &stubService{}, Rules: phoneRules(), CollectAll: true}, nil)
	err := c.Validate()
	var all validate.Errors
	if !errors.As(err, &all) || len(all) != 2 {
		t.Fatalf("expected both fields reported, got %v", err)
	}
}
