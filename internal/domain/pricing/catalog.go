package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// LabTest is an entry of the laboratory price list.
type LabTest struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LabCatalog is the read-only lookup contract for laboratory tests.
type LabCatalog interface {
	Lookup(ctx context.Context, ids []uuid.UUID) ([]LabTest, error)
}

type labCatalogPG struct {
	pool db.Querier
}

func NewLabCatalogPG(pool db.Querier) LabCatalog {
	return &labCatalogPG{pool: pool}
}

// Lookup returns the tests in the order requested. Duplicate ids are
// returned once; an unknown id is a validation error.
func (c *labCatalogPG) Lookup(ctx context.Context, ids []uuid.UUID) ([]LabTest, error) {
	if len(ids) == 0 {
		return nil, apperror.Validation("test_refs", "at least one test is required")
	}
	rows, err := db.Conn(ctx, c.pool).Query(ctx,
		`SELECT id, name, price FROM lab_test WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, db.Classify("lookup lab tests", err)
	}
	defer rows.Close()

	found := make(map[uuid.UUID]LabTest, len(ids))
	for rows.Next() {
		var lt LabTest
		if err := rows.Scan(&lt.ID, &lt.Name, &lt.Price); err != nil {
			return nil, db.Classify("scan lab test", err)
		}
		found[lt.ID] = lt
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify("lookup lab tests", err)
	}
	return ordered(ids, found)
}

func ordered(ids []uuid.UUID, found map[uuid.UUID]LabTest) ([]LabTest, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]LabTest, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		lt, ok := found[id]
		if !ok {
			return nil, apperror.Validation("test_refs", fmt.Sprintf("unknown lab test %s", id))
		}
		out = append(out, lt)
	}
	return out, nil
}

// StaticLabCatalog serves a fixed list, for tests and seeding.
type StaticLabCatalog map[uuid.UUID]LabTest

func (s StaticLabCatalog) Lookup(_ context.Context, ids []uuid.UUID) ([]LabTest, error) {
	if len(ids) == 0 {
		return nil, apperror.Validation("test_refs", "at least one test is required")
	}
	return ordered(ids, s)
}
