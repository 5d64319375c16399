package models

import (
	"time"
)

// Route represents a fixed service path operated by the institution.
// Inactive routes cannot be assigned to a vehicle.
type Route struct {
	RouteID   string `json:"route_id" gorm:"primaryKey;column:route_id"`
	Name      string `json:"name" binding:"required"`
	StopCount int    `json:"stop_count"`
	Active    bool   `json:"active" gorm:"default:true"`

	// Geometry stored in PostGIS as a LINESTRING (SRID 4326).
	// When creating, provide GeoJSON; migrations define the column type appropriately.
	Geometry []byte `json:"-" gorm:"type:bytea"`

	Stops []Stop `gorm:"foreignKey:RouteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"stops,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stop is one pickup/dropoff point along a route.
// Seq indicates order along the route.
type Stop struct {
	ID      uint    `json:"id" gorm:"primaryKey"`
	Name    string  `json:"name" binding:"required"`
	Seq     int     `json:"seq" binding:"required"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RouteID string  `json:"route_id" gorm:"index"`
}
