package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid || s == StatusCancelled
}

type ItemType string

const (
	ItemConsultation ItemType = "consultation"
	ItemLaboratory   ItemType = "laboratory"
	ItemOther        ItemType = "other"
)

func (t ItemType) Valid() bool {
	return t == ItemConsultation || t == ItemLaboratory || t == ItemOther
}

// Transaction is the ledger head for one appointment's bill.
type Transaction struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	TransactionCode    string           `db:"transaction_code" json:"transaction_code"`
	AppointmentID      uuid.UUID        `db:"appointment_id" json:"appointment_id"`
	Status             Status           `db:"status" json:"status"`
	Subtotal           decimal.Decimal  `db:"subtotal" json:"subtotal"`
	DiscountAmount     decimal.Decimal  `db:"discount_amount" json:"discount_amount"`
	DiscountPercentage *decimal.Decimal `db:"discount_percentage" json:"discount_percentage,omitempty"`
	TotalAmount        decimal.Decimal  `db:"total_amount" json:"total_amount"`
	PaymentMethod      *string          `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference   *string          `db:"payment_reference" json:"payment_reference,omitempty"`
	AmountTendered     *decimal.Decimal `db:"amount_tendered" json:"amount_tendered,omitempty"`
	PaidAt             *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
	Items              []Item           `json:"items,omitempty"`
}

type Item struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TransactionID uuid.UUID       `db:"transaction_id" json:"transaction_id"`
	ItemType      ItemType        `db:"item_type" json:"item_type"`
	ItemName      string          `db:"item_name" json:"item_name"`
	Quantity      int             `db:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice    decimal.Decimal `db:"total_price" json:"total_price"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// ItemInput is a charge to add. Quantity defaults to 1.
type ItemInput struct {
	ItemType  ItemType        `json:"item_type"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Discount is applied once, when the bill is opened. A percentage wins over
// a flat amount.
type Discount struct {
	Amount     decimal.Decimal  `json:"amount"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

type Payment struct {
	Method         string           `json:"payment_method"`
	Reference      *string          `json:"payment_reference,omitempty"`
	AmountTendered *decimal.Decimal `json:"amount_tendered,omitempty"`
}

type Filter struct {
	Status        Status
	AppointmentID *uuid.UUID
	Limit         int
	Offset        int
}

// LabChargeRequest adds catalog lab tests to the bill behind a visit.
type LabChargeRequest struct {
	VisitID uuid.UUID   `json:"visit_ref"`
	TestIDs []uuid.UUID `json:"test_refs"`
	Notes   *string     `json:"notes,omitempty"`
}
