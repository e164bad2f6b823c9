package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/domain/pricing"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

// VisitResolver maps a visit to the appointment whose bill it charges.
type VisitResolver interface {
	AppointmentFor(ctx context.Context, visitID uuid.UUID) (uuid.UUID, error)
}

// LabCharges turns lab orders against a visit into laboratory items on the
// appointment's open bill.
type LabCharges struct {
	visits  VisitResolver
	catalog pricing.LabCatalog
	ledger  *Ledger
	logger  zerolog.Logger
}

func NewLabCharges(visits VisitResolver, catalog pricing.LabCatalog, ledger *Ledger, logger zerolog.Logger) *LabCharges {
	return &LabCharges{visits: visits, catalog: catalog, ledger: ledger, logger: logger}
}

// Add merges the requested tests and returns the bill's new total. Tests
// already on the bill are not charged twice.
func (c *LabCharges) Add(ctx context.Context, req LabChargeRequest) (decimal.Decimal, error) {
	if req.VisitID == uuid.Nil {
		return decimal.Zero, apperror.Validation("visit_ref", "is required")
	}
	if len(req.TestIDs) == 0 {
		return decimal.Zero, apperror.Validation("test_refs", "at least one test is required")
	}
	apptID, err := c.visits.AppointmentFor(ctx, req.VisitID)
	if err != nil {
		return decimal.Zero, err
	}
	tests, err := c.catalog.Lookup(ctx, req.TestIDs)
	if err != nil {
		return decimal.Zero, err
	}

	items := make([]ItemInput, 0, len(tests))
	for _, lt := range tests {
		items = append(items, ItemInput{ItemType: ItemLaboratory, ItemName: lt.Name, Quantity: 1, UnitPrice: lt.Price})
	}
	total, err := c.ledger.Merge(ctx, apptID, items)
	if err != nil {
		return decimal.Zero, err
	}
	ev := c.logger.Info().Str("visit_id", req.VisitID.String()).Int("tests", len(tests))
	if req.Notes != nil {
		ev = ev.Str("notes", *req.Notes)
	}
	ev.Msg("lab charges added")
	return total, nil
}
