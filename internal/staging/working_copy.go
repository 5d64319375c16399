// Package staging implements the assignment staging engine: an in-memory
// working copy of the fleet that accumulates tentative reassignment rows,
// resolves the effective (staged-over-live) state, and reverts cleanly.
//
// Everything in this package is synchronous and storage-free; durable
// commits live in internal/services.
package staging

import (
	"fleet_ops/internal/models"
)

// WorkingCopy owns a mutable copy of every entity in the fleet, keyed by
// identity, plus an immutable snapshot captured at load time and the
// ordered list of pending staging rows.
//
// A WorkingCopy belongs to exactly one editing session. Rows hold entity
// ids only, never pointers into these maps, so a driver appearing in two
// rows cannot alias.
type WorkingCopy struct {
	Drivers  map[string]*models.Driver
	Vehicles map[string]*models.Vehicle
	Routes   map[string]*models.Route

	originalDrivers  map[string]models.Driver
	originalVehicles map[string]models.Vehicle
	originalRoutes   map[string]models.Route

	rows []StagingRow
}

// NewWorkingCopy deep-copies the loaded entities into an owned working set
// and captures the parallel original snapshot.
func NewWorkingCopy(drivers []models.Driver, vehicles []models.Vehicle, routes []models.Route) *WorkingCopy {
	wc := &WorkingCopy{
		Drivers:          make(map[string]*models.Driver, len(drivers)),
		Vehicles:         make(map[string]*models.Vehicle, len(vehicles)),
		Routes:           make(map[string]*models.Route, len(routes)),
		originalDrivers:  make(map[string]models.Driver, len(drivers)),
		originalVehicles: make(map[string]models.Vehicle, len(vehicles)),
		originalRoutes:   make(map[string]models.Route, len(routes)),
	}
	for _, d := range drivers {
		cp := copyDriver(d)
		wc.Drivers[d.UID] = &cp
		wc.originalDrivers[d.UID] = copyDriver(d)
	}
	for _, v := range vehicles {
		cp := copyVehicle(v)
		wc.Vehicles[v.BusID] = &cp
		wc.originalVehicles[v.BusID] = copyVehicle(v)
	}
	for _, r := range routes {
		cp := copyRoute(r)
		wc.Routes[r.RouteID] = &cp
		wc.originalRoutes[r.RouteID] = copyRoute(r)
	}
	return wc
}

// Rows returns the pending rows in staging order.
func (wc *WorkingCopy) Rows() []StagingRow {
	out := make([]StagingRow, len(wc.rows))
	copy(out, wc.rows)
	return out
}

// Row returns the pending row with the given id, or nil.
func (wc *WorkingCopy) Row(rowID string) StagingRow {
	for _, row := range wc.rows {
		if row.RowID() == rowID {
			return row
		}
	}
	return nil
}

// RowForVehicle returns the pending row of the given kind targeting the
// vehicle, or nil. At most one such row exists at a time.
func (wc *WorkingCopy) RowForVehicle(busID string, kind RowKind) StagingRow {
	for _, row := range wc.rows {
		if row.TargetBus() == busID && row.Kind() == kind {
			return row
		}
	}
	return nil
}

func (wc *WorkingCopy) appendRow(row StagingRow) {
	wc.rows = append(wc.rows, row)
}

func (wc *WorkingCopy) removeRow(rowID string) bool {
	for i, row := range wc.rows {
		if row.RowID() == rowID {
			wc.rows = append(wc.rows[:i], wc.rows[i+1:]...)
			return true
		}
	}
	return false
}

// restoreDriver puts the original snapshot of the driver back into the
// working set. Unknown ids are ignored.
func (wc *WorkingCopy) restoreDriver(uid string) {
	if orig, ok := wc.originalDrivers[uid]; ok {
		cp := copyDriver(orig)
		wc.Drivers[uid] = &cp
	}
}

func (wc *WorkingCopy) restoreVehicle(busID string) {
	if orig, ok := wc.originalVehicles[busID]; ok {
		cp := copyVehicle(orig)
		wc.Vehicles[busID] = &cp
	}
}

func (wc *WorkingCopy) restoreRoute(routeID string) {
	if orig, ok := wc.originalRoutes[routeID]; ok {
		cp := copyRoute(orig)
		wc.Routes[routeID] = &cp
	}
}

// OriginalDriver returns the load-time snapshot of a driver.
func (wc *WorkingCopy) OriginalDriver(uid string) (models.Driver, bool) {
	d, ok := wc.originalDrivers[uid]
	return copyDriver(d), ok
}

// OriginalVehicle returns the load-time snapshot of a vehicle.
func (wc *WorkingCopy) OriginalVehicle(busID string) (models.Vehicle, bool) {
	v, ok := wc.originalVehicles[busID]
	return copyVehicle(v), ok
}

// Entity copies detach every pointer field so the working set and the
// original snapshot never share memory.

func copyDriver(d models.Driver) models.Driver {
	d.AssignedBusID = copyStrPtr(d.AssignedBusID)
	d.AssignedRouteID = copyStrPtr(d.AssignedRouteID)
	return d
}

func copyVehicle(v models.Vehicle) models.Vehicle {
	v.AssignedDriverID = copyStrPtr(v.AssignedDriverID)
	v.ActiveDriverID = copyStrPtr(v.ActiveDriverID)
	v.RouteID = copyStrPtr(v.RouteID)
	v.RouteName = copyStrPtr(v.RouteName)
	v.ActiveTripID = copyStrPtr(v.ActiveTripID)
	return v
}

func copyRoute(r models.Route) models.Route {
	if r.Stops != nil {
		stops := make([]models.Stop, len(r.Stops))
		copy(stops, r.Stops)
		r.Stops = stops
	}
	if r.Geometry != nil {
		geom := make([]byte, len(r.Geometry))
		copy(geom, r.Geometry)
		r.Geometry = geom
	}
	return r
}

func copyStrPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func strPtr(s string) *string {
	return &s
}
