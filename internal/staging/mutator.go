package staging

import (
	"fmt"
)

// Apply folds a staging row's effect into the working copy's entities so
// the merged view and the raw entity maps agree. The inverse is Revert.
func Apply(row StagingRow, wc *WorkingCopy) error {
	switch r := row.(type) {
	case *DriverRow:
		return applyDriverRow(r, wc)
	case *RouteRow:
		return applyRouteRow(r, wc)
	default:
		return fmt.Errorf("unknown staging row kind %q", row.Kind())
	}
}

func applyDriverRow(row *DriverRow, wc *WorkingCopy) error {
	vehicle, ok := wc.Vehicles[row.BusID]
	if !ok {
		return fmt.Errorf("vehicle %s not in working copy", row.BusID)
	}
	incoming, ok := wc.Drivers[row.NewOperator.UID]
	if !ok {
		return fmt.Errorf("driver %s not in working copy", row.NewOperator.UID)
	}

	// Detach the incoming driver's old vehicle first. On a swap the
	// displaced operator takes it over below; otherwise it goes driverless.
	vacatedID := row.NewOperator.PreviousBusID
	if vacatedID != nil && *vacatedID != row.BusID {
		if vacated, ok := wc.Vehicles[*vacatedID]; ok {
			vacated.AssignedDriverID = nil
			vacated.ActiveDriverID = nil
		}
	}

	vehicle.AssignedDriverID = strPtr(incoming.UID)
	vehicle.ActiveDriverID = strPtr(incoming.UID)
	incoming.AssignedBusID = strPtr(row.BusID)
	incoming.IsReserved = false

	if row.PreviousOperator != nil && row.PreviousOperator.UID != incoming.UID {
		displaced, ok := wc.Drivers[row.PreviousOperator.UID]
		if !ok {
			return fmt.Errorf("displaced driver %s not in working copy", row.PreviousOperator.UID)
		}
		if row.IsSwap && vacatedID != nil {
			displaced.AssignedBusID = strPtr(*vacatedID)
			displaced.IsReserved = false
			if vacated, ok := wc.Vehicles[*vacatedID]; ok {
				vacated.AssignedDriverID = strPtr(displaced.UID)
				vacated.ActiveDriverID = strPtr(displaced.UID)
			}
		} else {
			displaced.AssignedBusID = nil
			displaced.IsReserved = true
		}
	}
	return nil
}

func applyRouteRow(row *RouteRow, wc *WorkingCopy) error {
	vehicle, ok := wc.Vehicles[row.BusID]
	if !ok {
		return fmt.Errorf("vehicle %s not in working copy", row.BusID)
	}
	vehicle.RouteID = strPtr(row.NewRouteID)
	vehicle.RouteName = strPtr(row.NewRouteName)
	return nil
}

// Revert removes one pending row and restores every entity it touched from
// the original load-time snapshot. Restoring from the snapshot, never from
// a recomputed previous state, keeps undo chains from compounding errors.
func Revert(rowID string, wc *WorkingCopy) error {
	raw := wc.Row(rowID)
	if raw == nil {
		return fmt.Errorf("staging row %s not found", rowID)
	}
	switch row := raw.(type) {
	case *DriverRow:
		wc.restoreVehicle(row.BusID)
		wc.restoreDriver(row.NewOperator.UID)
		if row.PreviousOperator != nil {
			wc.restoreDriver(row.PreviousOperator.UID)
		}
		if row.NewOperator.PreviousBusID != nil {
			wc.restoreVehicle(*row.NewOperator.PreviousBusID)
		}
	case *RouteRow:
		wc.restoreVehicle(row.BusID)
	default:
		return fmt.Errorf("unknown staging row kind %q", raw.Kind())
	}
	wc.removeRow(rowID)

	// Entities restored above may also have been touched by rows that
	// remain pending; replay those so their effect is not lost.
	for _, remaining := range wc.rows {
		if err := Apply(remaining, wc); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll drops every pending row and restores the whole working set from
// the original snapshot in one pass. The result is structurally equal to
// the state at load time.
func ClearAll(wc *WorkingCopy) {
	wc.rows = nil
	for uid := range wc.originalDrivers {
		wc.restoreDriver(uid)
	}
	for busID := range wc.originalVehicles {
		wc.restoreVehicle(busID)
	}
	for routeID := range wc.originalRoutes {
		wc.restoreRoute(routeID)
	}
	// Entities that never existed at load time cannot be produced by
	// staging, but a stray insert would break structural equality.
	for uid := range wc.Drivers {
		if _, ok := wc.originalDrivers[uid]; !ok {
			delete(wc.Drivers, uid)
		}
	}
	for busID := range wc.Vehicles {
		if _, ok := wc.originalVehicles[busID]; !ok {
			delete(wc.Vehicles, busID)
		}
	}
	for routeID := range wc.Routes {
		if _, ok := wc.originalRoutes[routeID]; !ok {
			delete(wc.Routes, routeID)
		}
	}
}
