// Package store is the persistence boundary of the reassignment engine.
// The engine only ever talks to EntityStore; postgres/gorm is one
// implementation, the in-memory store backs tests.
package store

import (
	"context"
	"errors"

	"fleet_ops/internal/models"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with an existing key.
var ErrDuplicate = errors.New("duplicate key")

// EntityStore provides per-document atomic reads and writes over the four
// durable collections plus a transaction scope used to make each committed
// row's writes atomic as a unit.
type EntityStore interface {
	// LoadFleet fetches every driver, vehicle, and route for a fresh
	// working copy.
	LoadFleet(ctx context.Context) ([]models.Driver, []models.Vehicle, []models.Route, error)

	GetDriver(ctx context.Context, uid string) (*models.Driver, error)
	GetVehicle(ctx context.Context, busID string) (*models.Vehicle, error)
	GetRoute(ctx context.Context, routeID string) (*models.Route, error)

	SaveDriver(ctx context.Context, d *models.Driver) error
	SaveVehicle(ctx context.Context, v *models.Vehicle) error
	SaveRoute(ctx context.Context, r *models.Route) error

	// AppendLog inserts an audit entry. Entries are never updated.
	AppendLog(ctx context.Context, entry *models.ReassignmentLog) error
	GetLog(ctx context.Context, operationID string) (*models.ReassignmentLog, error)
	// ListLogs returns newest-first entries, optionally filtered by type.
	ListLogs(ctx context.Context, typeFilter string, limit int) ([]models.ReassignmentLog, error)
	// FindRollbackOf returns the rollback entry referencing the given
	// operation, or ErrNotFound.
	FindRollbackOf(ctx context.Context, operationID string) (*models.ReassignmentLog, error)

	// Transact runs fn against a store whose writes commit or roll back
	// as one unit.
	Transact(ctx context.Context, fn func(EntityStore) error) error
}
