package models

import (
	"fmt"
	"time"
)

// Route is an origin/destination pair that is tracked by the pipeline.
// Routes are deactivated, never hard-deleted.
type Route struct {
	ID          int64     `json:"id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Code returns the route in "ICN-NRT" form.
func (r Route) Code() string {
	return fmt.Sprintf("%s-%s", r.Origin, r.Destination)
}
