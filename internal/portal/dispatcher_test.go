package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-practice-portal/internal/api"
	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
)

var errBackend = errors.New("client: 409 invalid_status_transition")

type fakeClient struct {
	calls    []string
	err      error
	complete api.CompleteAppointmentRequest
	failed   map[uuid.UUID]string
}

func (f *fakeClient) record(name string) (*api.AppointmentResponse, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return &api.AppointmentResponse{}, nil
}

func (f *fakeClient) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return f.record("confirm")
}

func (f *fakeClient) CheckIn(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return f.record("check-in")
}

func (f *fakeClient) StartAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return f.record("start")
}

func (f *fakeClient) CompleteAppointment(ctx context.Context, id uuid.UUID, req api.CompleteAppointmentRequest) (*api.AppointmentResponse, error) {
	f.complete = req
	return f.record("complete")
}

func (f *fakeClient) CancelAppointment(ctx context.Context, id uuid.UUID, req api.CancelAppointmentRequest) (*api.AppointmentResponse, error) {
	return f.record("cancel")
}

func (f *fakeClient) MarkNoShow(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return f.record("no-show")
}

func (f *fakeClient) UndoNoShow(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return f.record("undo-no-show")
}

func (f *fakeClient) RescheduleAppointment(ctx context.Context, id uuid.UUID, req api.RescheduleAppointmentRequest) (*api.AppointmentResponse, error) {
	return f.record("reschedule")
}

func (f *fakeClient) BulkConfirm(ctx context.Context, ids []uuid.UUID) (*api.BulkConfirmResponse, error) {
	f.calls = append(f.calls, "bulk-confirm")
	if f.err != nil {
		return nil, f.err
	}
	resp := &api.BulkConfirmResponse{Failed: f.failed}
	for _, id := range ids {
		if _, bad := f.failed[id]; !bad {
			resp.Confirmed = append(resp.Confirmed, id)
		}
	}
	return resp, nil
}

func (f *fakeClient) ConfirmConsumption(ctx context.Context, req api.ConsumptionConfirmRequest) (*api.ConsumptionConfirmResponse, error) {
	f.calls = append(f.calls, "consume")
	if f.err != nil {
		return nil, f.err
	}
	return &api.ConsumptionConfirmResponse{MaterialCost: decimal.RequireFromString("7.25")}, nil
}

func (f *fakeClient) RecordPayment(ctx context.Context, invoiceID uuid.UUID, req api.RecordPaymentRequest) (*api.InvoiceResponse, error) {
	f.calls = append(f.calls, "payment")
	if f.err != nil {
		return nil, f.err
	}
	return &api.InvoiceResponse{}, nil
}

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(message string) { n.successes = append(n.successes, message) }

func (n *recordingNotifier) Error(message string, err error) { n.errors = append(n.errors, message) }

type harness struct {
	client    *fakeClient
	notifier  *recordingNotifier
	refreshes int
	d         *Dispatcher
}

func newHarness() *harness {
	h := &harness{client: &fakeClient{}, notifier: &recordingNotifier{}}
	h.d = NewDispatcher(h.client, h.notifier, func(context.Context) { h.refreshes++ },
		WithStockClient(h.client), WithPaymentClient(h.client))
	return h
}

func TestSimpleActionsRefreshAndNotify(t *testing.T) {
	actions := map[string]func(*Dispatcher, context.Context, uuid.UUID) error{
		"confirm":      (*Dispatcher).Confirm,
		"check-in":     (*Dispatcher).CheckIn,
		"start":        (*Dispatcher).Start,
		"no-show":      (*Dispatcher).NoShow,
		"undo-no-show": (*Dispatcher).UndoNoShow,
	}
	for name, action := range actions {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			require.NoError(t, action(h.d, context.Background(), uuid.New()))
			assert.Equal(t, []string{name}, h.client.calls)
			assert.Equal(t, 1, h.refreshes)
			assert.Len(t, h.notifier.successes, 1)
			assert.Empty(t, h.notifier.errors)
		})
	}
}

func TestRequestErrorsAreSwallowed(t *testing.T) {
	h := newHarness()
	h.client.err = errBackend

	assert.NoError(t, h.d.CheckIn(context.Background(), uuid.New()))
	assert.NoError(t, h.d.Cancel(context.Background(), uuid.New(), api.CancelAppointmentRequest{Reason: "illness"}))
	assert.NoError(t, h.d.BulkConfirm(context.Background(), []uuid.UUID{uuid.New()}))

	assert.Equal(t, 0, h.refreshes)
	assert.Empty(t, h.notifier.successes)
	assert.Equal(t, []string{"Failed to check in patient", "Failed to cancel appointment", "Failed to confirm appointments"}, h.notifier.errors)
}

func TestValidationBlocksRequest(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	assert.ErrorIs(t, h.d.Confirm(ctx, uuid.Nil), ErrMissingAppointment)
	assert.ErrorIs(t, h.d.Cancel(ctx, uuid.New(), api.CancelAppointmentRequest{Reason: "other", Notes: "  "}), appointment.ErrNotesRequired)
	assert.ErrorIs(t, h.d.Cancel(ctx, uuid.New(), api.CancelAppointmentRequest{Reason: "bored"}), appointment.ErrInvalidReason)

	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, h.d.Reschedule(ctx, uuid.New(), api.RescheduleAppointmentRequest{Start: start, End: start}), appointment.ErrInvalidTimeRange)
	assert.ErrorIs(t, h.d.BulkConfirm(ctx, nil), ErrNoSelection)
	assert.ErrorIs(t, h.d.Complete(ctx, uuid.New(), api.CompleteAppointmentRequest{}), appointment.ErrNoProcedures)

	assert.Empty(t, h.client.calls)
	assert.Empty(t, h.notifier.errors)
}

func TestCompleteReturnsRequestError(t *testing.T) {
	h := newHarness()
	h.client.err = errBackend

	err := h.d.Complete(context.Background(), uuid.New(), api.CompleteAppointmentRequest{
		Procedures: []api.ProcedureRequest{{Code: "D1110", Price: decimal.NewFromInt(95), Quantity: 1}},
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, []string{"Failed to complete appointment"}, h.notifier.errors)
	assert.Equal(t, 0, h.refreshes)
}

func TestBulkConfirmPartialFailure(t *testing.T) {
	h := newHarness()
	bad := uuid.New()
	h.client.failed = map[uuid.UUID]string{bad: "invalid status transition"}

	require.NoError(t, h.d.BulkConfirm(context.Background(), []uuid.UUID{uuid.New(), bad}))
	assert.Equal(t, 1, h.refreshes)
	assert.Equal(t, []string{"1 of 2 appointments could not be confirmed"}, h.notifier.errors)
}

func TestCompleteWithMaterialsFoldsCost(t *testing.T) {
	h := newHarness()
	plan := inventory.Plan{Lines: []inventory.Consumption{
		{ProductID: uuid.New(), Name: "Gloves", Quantity: 2, AvailableStock: 100, StockStatus: inventory.InStock, UnitCost: decimal.RequireFromString("0.25")},
		{ProductID: uuid.New(), Name: "Bib", Quantity: 0, AvailableStock: 40, StockStatus: inventory.InStock},
	}}

	err := h.d.CompleteWithMaterials(context.Background(), uuid.New(), []api.ProcedureRequest{{Code: "D1110", Price: decimal.NewFromInt(95), Quantity: 1}}, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"consume", "complete"}, h.client.calls)
	assert.True(t, decimal.RequireFromString("7.25").Equal(h.client.complete.MaterialCost))
}

func TestCompleteWithMaterialsBlockedPlan(t *testing.T) {
	h := newHarness()
	plan := inventory.Plan{Lines: []inventory.Consumption{
		{ProductID: uuid.New(), Name: "Composite", Quantity: 3, AvailableStock: 1, StockStatus: inventory.LowStock},
	}}

	err := h.d.CompleteWithMaterials(context.Background(), uuid.New(), []api.ProcedureRequest{{Code: "D2391", Price: decimal.NewFromInt(120), Quantity: 1}}, plan)
	var blocked *inventory.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Empty(t, h.client.calls)
}

func TestSubmitPaymentRevalidates(t *testing.T) {
	h := newHarness()
	alloc := billing.NewAllocator(decimal.NewFromInt(100))
	require.NoError(t, alloc.SetMethod(0, billing.MethodCard))

	err := h.d.SubmitPayment(context.Background(), uuid.New(), alloc)
	assert.True(t, billing.IsValidation(err))
	assert.Empty(t, h.client.calls)

	require.NoError(t, alloc.SetReference(0, "AUTH-1234"))
	require.NoError(t, h.d.SubmitPayment(context.Background(), uuid.New(), alloc))
	assert.Equal(t, []string{"payment"}, h.client.calls)
	assert.Equal(t, []string{"Payment recorded"}, h.notifier.successes)
}
