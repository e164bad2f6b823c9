package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

func TestApproveAndProvision(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	requester := uuid.New()
	a := w.book(&requester)
	w.events.events = nil

	out, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, scheduling.StatusConfirmed, out.Appointment.Status)
	require.NotNil(t, out.Visit.AppointmentID)
	assert.Equal(t, a.ID, *out.Visit.AppointmentID)
	assert.Regexp(t, `^VIS\d{6}0001$`, out.Visit.VisitCode)
	assert.Regexp(t, `^TXN\d{6}0001$`, out.Bill.TransactionCode)
	assert.Equal(t, billing.StatusPending, out.Bill.Status)
	assert.Equal(t, "500.00", out.Bill.TotalAmount.StringFixed(2))
	require.Len(t, out.Bill.Items, 1)
	assert.Equal(t, billing.ItemConsultation, out.Bill.Items[0].ItemType)
	assert.Equal(t, "consultation", out.Bill.Items[0].ItemName)

	require.Len(t, w.events.events, 1)
	assert.Equal(t, scheduling.StatusConfirmed, w.events.events[0].New)
}

func TestApproveAndProvision_FailureRollsBackEverything(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	a := w.book(nil)
	w.events.events = nil
	w.store.failOpen = apperror.Persistence("insert billing transaction", errors.New("disk full"))

	_, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsPersistence(err))

	stored, err := w.lifecycle.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusPending, stored.Status, "status change rolled back")
	assert.Empty(t, w.store.visits, "visit rolled back")
	assert.Empty(t, w.store.txns)
	assert.Empty(t, w.store.counters, "code counters rolled back")
	assert.Empty(t, w.events.events, "no event for a rolled back unit")
}

func TestApproveAndProvision_OnlyFromPending(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	a := w.book(nil)
	_, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.NoError(t, err)

	_, err = w.orch.ApproveAndProvision(ctx, a.ID, nil)
	assert.True(t, apperror.IsConflict(err), "second approval: %v", err)
	assert.Len(t, w.store.visits, 1)
	assert.Len(t, w.store.txns, 1)

	_, err = w.orch.ApproveAndProvision(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestApproveAndProvision_UnknownTypeSeedsZero(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	a, err := w.lifecycle.Create(ctx, scheduling.BookingRequest{
		AppointmentType: "aromatherapy", Date: "2026-03-10", Time: "1000", SpecialistRef: uuid.New(),
	})
	require.NoError(t, err)

	out, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.True(t, out.Bill.TotalAmount.IsZero())
}

func TestApproveAndProvision_ExplicitBasePriceIsBilled(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	free, err := w.lifecycle.Create(ctx, scheduling.BookingRequest{
		AppointmentType: "consultation", Date: "2026-03-10", Time: "1000", SpecialistRef: uuid.New(),
		BasePrice: &decimal.Zero,
	})
	require.NoError(t, err)
	out, err := w.orch.ApproveAndProvision(ctx, free.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.00", out.Appointment.BasePrice.StringFixed(2))
	assert.Equal(t, "0.00", out.Bill.TotalAmount.StringFixed(2))
	require.Len(t, out.Bill.Items, 1)
	assert.True(t, out.Bill.Items[0].UnitPrice.IsZero())

	custom := decimal.NewFromInt(650)
	priced, err := w.lifecycle.Create(ctx, scheduling.BookingRequest{
		AppointmentType: "consultation", Date: "2026-03-10", Time: "1100", SpecialistRef: uuid.New(),
		BasePrice: &custom,
	})
	require.NoError(t, err)
	out, err = w.orch.ApproveAndProvision(ctx, priced.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "650.00", out.Bill.TotalAmount.StringFixed(2))
}

func TestCreateWalkIn(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	pct := decimal.NewFromInt(20)

	out, err := w.orch.CreateWalkIn(ctx, WalkInRequest{
		Patient: patient.Request{FullName: "Juan dela Cruz", Phone: "0917 123 4567"},
		Booking: scheduling.BookingRequest{
			AppointmentType: "follow-up", Date: "2026-03-10", Time: "1415", SpecialistRef: uuid.New(),
			Source: scheduling.SourceOnline,
		},
		Discount: billing.Discount{Percentage: &pct},
	})
	require.NoError(t, err)

	assert.Equal(t, scheduling.SourceWalkIn, out.Appointment.Source)
	assert.Equal(t, scheduling.StatusConfirmed, out.Appointment.Status)
	assert.Equal(t, "P001", out.Appointment.PatientCode)
	require.NotNil(t, out.Appointment.PatientID)
	assert.Equal(t, "+639171234567", w.store.patients[*out.Appointment.PatientID].Phone)
	assert.Equal(t, "240.00", out.Bill.TotalAmount.StringFixed(2))
	assert.NotNil(t, out.Visit)

	// Same phone: the patient is reused.
	again, err := w.orch.CreateWalkIn(ctx, WalkInRequest{
		Patient: patient.Request{FullName: "Juan dela Cruz", Phone: "+63 917 123 4567"},
		Booking: scheduling.BookingRequest{AppointmentType: "consultation", Date: "2026-03-10", Time: "1500", SpecialistRef: uuid.New()},
	})
	require.NoError(t, err)
	assert.Equal(t, *out.Appointment.PatientID, *again.Appointment.PatientID)
	assert.Equal(t, "P002", again.Appointment.PatientCode)
	assert.Len(t, w.store.patients, 1)
}

func TestCreateWalkIn_FailureLeavesNoTrace(t *testing.T) {
	w := newWorld()
	w.store.failOpen = apperror.Persistence("insert billing transaction", errors.New("timeout"))

	_, err := w.orch.CreateWalkIn(context.Background(), WalkInRequest{
		Patient: patient.Request{FullName: "Maria Santos", Phone: "09181234567"},
		Booking: scheduling.BookingRequest{AppointmentType: "consultation", Date: "2026-03-10", Time: "0800", SpecialistRef: uuid.New()},
	})
	require.Error(t, err)
	assert.Empty(t, w.store.appts)
	assert.Empty(t, w.store.patients)
	assert.Empty(t, w.store.visits)
	assert.Empty(t, w.events.events)
}

func TestCreateWalkIn_RequiresPatient(t *testing.T) {
	w := newWorld()
	_, err := w.orch.CreateWalkIn(context.Background(), WalkInRequest{
		Booking: scheduling.BookingRequest{AppointmentType: "consultation", Date: "2026-03-10", Time: "0800", SpecialistRef: uuid.New()},
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestSettle(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	requester := uuid.New()
	a := w.book(&requester)
	out, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.NoError(t, err)
	w.sink.msgs = nil

	bill, err := w.orch.Settle(ctx, out.Bill.ID, billing.Payment{Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, bill.Status)

	stored, err := w.lifecycle.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.BillingPaid, stored.BillingStatus)

	require.Len(t, w.sink.msgs, 1)
	assert.Equal(t, requester, w.sink.msgs[0].RecipientRef)
	assert.Equal(t, notification.KindBillingTransaction, w.sink.msgs[0].Related.Kind)
	assert.Contains(t, w.sink.msgs[0].Message, "500.00")

	err = w.lifecycle.Delete(ctx, a.ID)
	assert.True(t, apperror.IsConflict(err), "paid appointments cannot be deleted")

	_, err = w.orch.Settle(ctx, out.Bill.ID, billing.Payment{Method: "cash"})
	assert.True(t, apperror.IsConflict(err))
}

func TestCancel(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	a := w.book(nil)
	out, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.NoError(t, err)

	cancelled, err := w.orch.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, cancelled.Status)
	assert.Equal(t, billing.StatusCancelled, w.store.txns[out.Bill.ID].Status)

	_, err = w.ledger.Merge(ctx, a.ID, []billing.ItemInput{{ItemType: billing.ItemLaboratory, ItemName: "CBC", UnitPrice: decimal.NewFromInt(300)}})
	assert.True(t, apperror.IsPrecondition(err))

	_, err = w.orch.Cancel(ctx, a.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestCancel_PendingWithoutBill(t *testing.T) {
	w := newWorld()
	a := w.book(nil)
	cancelled, err := w.orch.Cancel(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, cancelled.Status)
}

func TestDeleteAfterProvisionRemovesUnpaidBill(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	a := w.book(nil)
	out, err := w.orch.ApproveAndProvision(ctx, a.ID, nil)
	require.NoError(t, err)

	require.NoError(t, w.lifecycle.Delete(ctx, a.ID))
	assert.Empty(t, w.store.txns)
	assert.Nil(t, w.store.visits[out.Visit.ID].AppointmentID, "visit kept, link cleared")
}
