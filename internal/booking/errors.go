package booking

import (
	"errors"
	"fmt"

	"agendamento/internal/models"
)

// Kind classifies why a candidate reservation was rejected.
type Kind string

const (
	KindInvalidInterval     Kind = "InvalidInterval"
	KindMissingRoom         Kind = "MissingRoom"
	KindResourceUnavailable Kind = "ResourceUnavailable"
	KindCapacityExceeded    Kind = "CapacityExceeded"
	KindNoResourceSelected  Kind = "NoResourceSelected"
	KindInvalidQuantity     Kind = "InvalidQuantity"
	KindUnknownResource     Kind = "UnknownResource"
)

// IsConflict reports whether the rejection depends on other reservations
// rather than on the candidate alone.
func (k Kind) IsConflict() bool {
	return k == KindResourceUnavailable || k == KindCapacityExceeded
}

// Rejection is a user-facing validation failure. It is returned as an error
// so store and service layers can pass it through unchanged.
type Rejection struct {
	Kind     Kind
	Resource models.ResourceType
	// Remaining is the free capacity of a pooled resource, set for
	// CapacityExceeded only.
	Remaining int64
	Message   string
}

func (r *Rejection) Error() string {
	return r.Message
}

// AsRejection extracts a rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func invalidInterval() *Rejection {
	return &Rejection{
		Kind:    KindInvalidInterval,
		Message: "The end time must be after the start time.",
	}
}

func noResourceSelected() *Rejection {
	return &Rejection{
		Kind:    KindNoResourceSelected,
		Message: "Select at least one resource.",
	}
}

func missingRoom(res models.Resource) *Rejection {
	return &Rejection{
		Kind:     KindMissingRoom,
		Resource: res.ID,
		Message:  fmt.Sprintf("Please inform the room where %s will be used.", res.Name),
	}
}

func invalidQuantity(res models.Resource, q int64) *Rejection {
	return &Rejection{
		Kind:     KindInvalidQuantity,
		Resource: res.ID,
		Message:  fmt.Sprintf("Invalid quantity %d for %s, it must be between 1 and %d.", q, res.Name, res.Capacity),
	}
}

func unknownResource(id models.ResourceType) *Rejection {
	return &Rejection{
		Kind:     KindUnknownResource,
		Resource: id,
		Message:  fmt.Sprintf("Unknown resource %q.", id),
	}
}

func resourceUnavailable(res models.Resource) *Rejection {
	return &Rejection{
		Kind:     KindResourceUnavailable,
		Resource: res.ID,
		Message:  fmt.Sprintf("%s is already booked for this time.", res.Name),
	}
}

func capacityExceeded(res models.Resource, remaining int64) *Rejection {
	return &Rejection{
		Kind:      KindCapacityExceeded,
		Resource:  res.ID,
		Remaining: remaining,
		Message:   fmt.Sprintf("Not enough %s for this time. Only %d available.", res.Name, remaining),
	}
}
