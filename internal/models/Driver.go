// internal/models/driver.go
package models

import (
	"time"
)

// Driver is an operator employed by the institution. AssignedBusID is nil
// whenever the driver sits in the reserve pool; IsReserved is kept in
// lockstep with that (IsReserved == (AssignedBusID == nil)).
type Driver struct {
	UID             string    `json:"uid" gorm:"primaryKey;column:uid"`
	EmployeeID      string    `json:"employee_id" gorm:"uniqueIndex"`
	Name            string    `json:"name"`
	AssignedBusID   *string   `json:"assigned_bus_id" gorm:"index"`
	AssignedRouteID *string   `json:"assigned_route_id"`
	IsReserved      bool      `json:"is_reserved"`
	Shift           string    `json:"shift"`  // "morning", "evening", "full_day"
	Status          string    `json:"status"` // "active", "on_leave", "suspended"
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Reserved reports whether the driver currently holds no vehicle.
func (d *Driver) Reserved() bool {
	return d.AssignedBusID == nil
}
