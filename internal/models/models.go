package models

import "time"

// Draft is the unfinished booking form of a user, kept between requests so
// the presentation layer can restore it.
type Draft struct {
	UserID    string         `json:"user_id"`
	Resources []ResourceType `json:"resources"`
	Date      string         `json:"date,omitempty"`
	StartTime string         `json:"start_time,omitempty"`
	EndTime   string         `json:"end_time,omitempty"`
	Quantity  *int64         `json:"quantity,omitempty"`
	Room      string         `json:"room,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasResource reports whether id is part of the current selection.
func (d *Draft) HasResource(id ResourceType) bool {
	if d == nil {
		return false
	}
	for _, r := range d.Resources {
		if r == id {
			return true
		}
	}
	return false
}

// Occupancy is the booked amount of a resource for one interval.
type Occupancy struct {
	Resource  ResourceType `json:"resource_id"`
	Date      string       `json:"date"`
	Booked    int64        `json:"booked"`
	Available int64        `json:"available"`
}
