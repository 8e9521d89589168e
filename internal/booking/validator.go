// Package booking decides whether proposed reservations may coexist with the
// ones already recorded. Everything here is pure: callers supply the
// snapshot of existing reservations.
package booking

import (
	"strings"
	"time"

	"agendamento/internal/models"
)

// Candidate is one proposed reservation for one resource.
type Candidate struct {
	Resource  models.ResourceType
	Date      time.Time
	StartTime models.Clock
	EndTime   models.Clock
	Quantity  *int64
	Room      string
}

// Request is a multi-resource booking as entered by a user. It expands into
// one candidate per selected resource.
type Request struct {
	Resources []models.ResourceType
	Date      time.Time
	StartTime models.Clock
	EndTime   models.Clock
	Quantity  *int64
	Room      string
}

type Validator struct {
	catalog *models.Catalog
}

func NewValidator(catalog *models.Catalog) *Validator {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	return &Validator{catalog: catalog}
}

func (v *Validator) Catalog() *models.Catalog {
	return v.catalog
}

// Validate checks a single candidate. It returns nil when the candidate is
// admissible.
func (v *Validator) Validate(c Candidate, existing []*models.Reservation, excludingID string) *Rejection {
	if c.StartTime >= c.EndTime {
		return invalidInterval()
	}
	res, rej := v.checkStatic(c)
	if rej != nil {
		return rej
	}
	return v.checkConflicts(res, c, existing, excludingID)
}

// ValidateBatch checks every candidate of a request and stops at the first
// failure. Static checks for all resources run before any conflict scan so
// input mistakes are reported ahead of availability problems.
func (v *Validator) ValidateBatch(candidates []Candidate, existing []*models.Reservation, excludingID string) *Rejection {
	if len(candidates) == 0 {
		return noResourceSelected()
	}
	for _, c := range candidates {
		if c.StartTime >= c.EndTime {
			return invalidInterval()
		}
	}

	resolved := make([]models.Resource, len(candidates))
	for i, c := range candidates {
		res, rej := v.checkStatic(c)
		if rej != nil {
			return rej
		}
		resolved[i] = res
	}

	for i, c := range candidates {
		if rej := v.checkConflicts(resolved[i], c, existing, excludingID); rej != nil {
			return rej
		}
	}
	return nil
}

// Candidates expands a request into per-resource candidates in catalog
// order. Duplicated selections collapse into one. Unknown identifiers are
// rejected rather than dropped.
func (v *Validator) Candidates(req Request) ([]Candidate, *Rejection) {
	for _, id := range req.Resources {
		if _, ok := v.catalog.Get(id); !ok {
			return nil, unknownResource(id)
		}
	}
	ids := v.catalog.Order(req.Resources)
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, Candidate{
			Resource:  id,
			Date:      req.Date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Quantity:  req.Quantity,
			Room:      req.Room,
		})
	}
	return out, nil
}

// ValidateRequest expands and validates a request in one step.
func (v *Validator) ValidateRequest(req Request, existing []*models.Reservation, excludingID string) ([]Candidate, *Rejection) {
	if req.StartTime >= req.EndTime {
		return nil, invalidInterval()
	}
	candidates, rej := v.Candidates(req)
	if rej != nil {
		return nil, rej
	}
	if rej := v.ValidateBatch(candidates, existing, excludingID); rej != nil {
		return nil, rej
	}
	return candidates, nil
}

func (v *Validator) checkStatic(c Candidate) (models.Resource, *Rejection) {
	res, ok := v.catalog.Get(c.Resource)
	if !ok {
		return models.Resource{}, unknownResource(c.Resource)
	}
	if res.RequiresRoom && strings.TrimSpace(c.Room) == "" {
		return res, missingRoom(res)
	}
	if res.IsPooled() && c.Quantity != nil && (*c.Quantity < 1 || *c.Quantity > res.Capacity) {
		return res, invalidQuantity(res, *c.Quantity)
	}
	return res, nil
}

func (v *Validator) checkConflicts(res models.Resource, c Candidate, existing []*models.Reservation, excludingID string) *Rejection {
	conflicts := Conflicts(c, existing, excludingID)

	if !res.IsPooled() {
		if len(conflicts) > 0 {
			return resourceUnavailable(res)
		}
		return nil
	}

	// Summing stops once the pool is exhausted, so no row can wrap the total.
	remaining := res.Capacity
	for _, b := range conflicts {
		if q := b.QuantityOrZero(); q > 0 {
			if q >= remaining {
				remaining = 0
				break
			}
			remaining -= q
		}
	}
	if RequestedQuantity(res, c.Quantity) > remaining {
		return capacityExceeded(res, remaining)
	}
	return nil
}

// Conflicts returns the live reservations on the candidate's resource and
// date whose interval overlaps the candidate's.
func Conflicts(c Candidate, existing []*models.Reservation, excludingID string) []*models.Reservation {
	day := models.DateKey(c.Date)
	var out []*models.Reservation
	for _, b := range existing {
		if b == nil || b.Resource != c.Resource || b.IsCanceled() {
			continue
		}
		if excludingID != "" && b.ID == excludingID {
			continue
		}
		if b.DateKey() != day {
			continue
		}
		if Overlaps(c.StartTime, c.EndTime, b.StartTime, b.EndTime) {
			out = append(out, b)
		}
	}
	return out
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(start, end, otherStart, otherEnd models.Clock) bool {
	return start < otherEnd && end > otherStart
}

// RequestedQuantity is the number of units a candidate claims. Exclusive
// resources always claim one; a pooled resource without an explicit
// quantity claims one as well.
func RequestedQuantity(res models.Resource, q *int64) int64 {
	if !res.IsPooled() || q == nil {
		return 1
	}
	return *q
}
