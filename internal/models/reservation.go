package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the administrative state of a reservation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCanceled  Status = "CANCELED"
)

var ErrUnknownStatus = errors.New("unknown status")

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusConfirmed, StatusCanceled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// CanTransitionTo reports whether an administrator may move a reservation
// from s to next. Nothing leaves CANCELED.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCanceled
	case StatusConfirmed:
		return next == StatusCanceled
	default:
		return false
	}
}

// Clock is a time of day in minutes after midnight.
type Clock int

func ParseClock(raw string) (Clock, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD form as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// DateKey formats the calendar part of t; two reservations are on the same
// day when their keys are equal.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

type Reservation struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	UserName  string       `json:"user_name"`
	Resource  ResourceType `json:"resource_id"`
	Date      time.Time    `json:"date"`
	StartTime Clock        `json:"start_time"`
	EndTime   Clock        `json:"end_time"`
	Quantity  *int64       `json:"quantity,omitempty"` // pooled resources only
	Room      string       `json:"room,omitempty"`
	Status    Status       `json:"status"`
	AdminNote string       `json:"admin_note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Version   int64        `json:"version"`
}

func (r *Reservation) DateKey() string {
	return DateKey(r.Date)
}

// QuantityOrZero treats a missing quantity as zero units.
func (r *Reservation) QuantityOrZero() int64 {
	if r.Quantity == nil {
		return 0
	}
	return *r.Quantity
}

func (r *Reservation) IsCanceled() bool {
	return r.Status == StatusCanceled
}

// ReservationPatch carries the owner-editable fields. A nil field was not
// provided and is left untouched.
type ReservationPatch struct {
	Date      *time.Time
	StartTime *Clock
	EndTime   *Clock
	Quantity  *int64
	Room      *string
}

func (p ReservationPatch) Empty() bool {
	return p.Date == nil && p.StartTime == nil && p.EndTime == nil && p.Quantity == nil && p.Room == nil
}

// Apply returns a copy of r with the provided fields replaced.
func (p ReservationPatch) Apply(r Reservation) Reservation {
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.StartTime != nil {
		r.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		r.EndTime = *p.EndTime
	}
	if p.Quantity != nil {
		q := *p.Quantity
		r.Quantity = &q
	}
	if p.Room != nil {
		r.Room = strings.TrimSpace(*p.Room)
	}
	return r
}

func Int64Ptr(v int64) *int64 {
	return &v
}
