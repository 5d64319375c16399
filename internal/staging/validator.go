package staging

import (
	"fmt"
)

// Validation error codes, stable for API consumers.
const (
	ErrVehicleNotFound = "vehicle_not_found"
	ErrVehicleOnTrip   = "vehicle_on_trip"
	ErrDriverNotFound  = "driver_not_found"
	ErrRouteNotFound   = "route_not_found"
	ErrRouteInactive   = "route_inactive"
	ErrInternal        = "internal_error"
)

// ValidationError rejects a single candidate row before it enters staging.
type ValidationError struct {
	RowID   string `json:"row_id"`
	BusID   string `json:"bus_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %s: %s", e.RowID, e.Message)
}

// Validate checks a candidate row against the working copy's invariants.
// Checks run in order and the first failure short-circuits; nothing is
// mutated. A nil return means the row may be staged.
func Validate(row StagingRow, wc *WorkingCopy) *ValidationError {
	fail := func(code, format string, args ...interface{}) *ValidationError {
		return &ValidationError{
			RowID:   row.RowID(),
			BusID:   row.TargetBus(),
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		}
	}

	vehicle, ok := wc.Vehicles[row.TargetBus()]
	if !ok {
		return fail(ErrVehicleNotFound, "vehicle %s does not exist", row.TargetBus())
	}
	// The active-trip guard: a bus mid-trip must not be reassigned.
	if vehicle.InService() {
		return fail(ErrVehicleOnTrip, "vehicle %s is locked by active trip %s", row.TargetBus(), *vehicle.ActiveTripID)
	}

	switch r := row.(type) {
	case *DriverRow:
		if _, ok := wc.Drivers[r.NewOperator.UID]; !ok {
			return fail(ErrDriverNotFound, "driver %s does not exist", r.NewOperator.UID)
		}
		if r.PreviousOperator != nil {
			if _, ok := wc.Drivers[r.PreviousOperator.UID]; !ok {
				return fail(ErrDriverNotFound, "driver %s does not exist", r.PreviousOperator.UID)
			}
		}
	case *RouteRow:
		route, ok := wc.Routes[r.NewRouteID]
		if !ok {
			return fail(ErrRouteNotFound, "route %s does not exist", r.NewRouteID)
		}
		if !route.Active {
			return fail(ErrRouteInactive, "route %s (%s) is not active", route.RouteID, route.Name)
		}
	}
	return nil
}
