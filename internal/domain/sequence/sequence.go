// Package sequence allocates the human-facing identifiers used by the clinic:
// dense gap-filled patient codes (P001, P002, ...) and period-scoped
// monotonic codes for bills and visits (TXN2026100001).
package sequence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GapFillLimit is the highest number NextAvailable fills with a zero-padded
// code. Past it allocation falls back to max+1.
const GapFillLimit = 999

// NextAvailable returns prefix followed by the smallest positive number in
// [1, GapFillLimit] not already used, padded to three digits. Codes without
// the prefix or with a non-numeric suffix are ignored. When every number up
// to GapFillLimit is taken it returns max(used)+1 unpadded.
func NextAvailable(prefix string, used []string) string {
	taken := make(map[int]bool, len(used))
	highest := 0
	for _, code := range used {
		n, ok := parseSuffix(prefix, code)
		if !ok {
			continue
		}
		taken[n] = true
		if n > highest {
			highest = n
		}
	}
	for n := 1; n <= GapFillLimit; n++ {
		if !taken[n] {
			return fmt.Sprintf("%s%03d", prefix, n)
		}
	}
	return prefix + strconv.Itoa(highest+1)
}

func parseSuffix(prefix, code string) (int, bool) {
	rest, ok := strings.CutPrefix(code, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Owner is an entity holding a code in a reindexable namespace.
type Owner struct {
	ID        uuid.UUID
	Code      string
	CreatedAt time.Time
}

// Assignment moves one owner from its current code to a new one.
type Assignment struct {
	ID   uuid.UUID
	From string
	To   string
}

// Reindex renumbers owners 1..N in creation order. Owners created at the
// same instant keep their relative input order. Only owners whose code
// changes are returned.
func Reindex(prefix string, owners []Owner) []Assignment {
	ordered := make([]Owner, len(owners))
	copy(ordered, owners)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var out []Assignment
	for i, o := range ordered {
		code := fmt.Sprintf("%s%03d", prefix, i+1)
		if o.Code != code {
			out = append(out, Assignment{ID: o.ID, From: o.Code, To: code})
		}
	}
	return out
}

// PeriodScope names the counter for prefix in the calendar month of at.
func PeriodScope(prefix string, at time.Time) string {
	return prefix + at.Format("200601")
}

// PeriodCode formats the seq-th code of the month containing at.
func PeriodCode(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", PeriodScope(prefix, at), seq)
}
