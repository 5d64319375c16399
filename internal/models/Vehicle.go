// internal/models/vehicle.go
package models

import (
	"time"
)

// Vehicle is a bus in the institutional fleet.
//
// AssignedDriverID and ActiveDriverID are kept in lockstep; both survive
// from the legacy schema where "active" tracked the driver currently on
// shift. A non-nil ActiveTripID means the bus is mid-trip and is locked
// against any reassignment.
type Vehicle struct {
	BusID            string    `json:"bus_id" gorm:"primaryKey;column:bus_id"`
	BusNumber        string    `json:"bus_number" gorm:"uniqueIndex"`
	AssignedDriverID *string   `json:"assigned_driver_id" gorm:"index"`
	ActiveDriverID   *string   `json:"active_driver_id"`
	RouteID          *string   `json:"route_id" gorm:"index"`
	RouteName        *string   `json:"route_name"`
	ActiveTripID     *string   `json:"active_trip_id"`
	Capacity         int       `json:"capacity"`
	Occupancy        int       `json:"occupancy"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName keeps the legacy collection name.
func (Vehicle) TableName() string {
	return "buses"
}

// InService reports whether the vehicle is currently running a trip.
func (v *Vehicle) InService() bool {
	return v.ActiveTripID != nil
}
