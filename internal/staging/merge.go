package staging

import (
	"fleet_ops/internal/models"
)

// Source tells a caller whether a resolved assignment comes from a pending
// staging row or from the live (durable-at-load) state.
type Source string

const (
	SourceStaged Source = "staged"
	SourceLive   Source = "live"
)

// RouteView is the merged answer to "what route does this bus run".
type RouteView struct {
	RouteID   string `json:"route_id"`
	Name      string `json:"name"`
	StopCount int    `json:"stop_count"`
}

// DriverForVehicle resolves the effective driver of a vehicle, preferring
// staged state over live state. A nil driver means the vehicle is
// driverless under the merged view.
func (wc *WorkingCopy) DriverForVehicle(busID string) (*models.Driver, Source) {
	if row, ok := wc.RowForVehicle(busID, KindDriver).(*DriverRow); ok && row != nil {
		return wc.Drivers[row.NewOperator.UID], SourceStaged
	}
	v, ok := wc.Vehicles[busID]
	if !ok {
		return nil, SourceLive
	}
	if v.AssignedDriverID != nil {
		if d, ok := wc.Drivers[*v.AssignedDriverID]; ok {
			return d, SourceLive
		}
	}
	if v.ActiveDriverID != nil {
		if d, ok := wc.Drivers[*v.ActiveDriverID]; ok {
			return d, SourceLive
		}
	}
	return nil, SourceLive
}

// VehicleForDriver resolves the effective vehicle of a driver. Precedence:
//
//  1. the driver is the incoming operator of a pending row -> that vehicle;
//  2. the driver is the displaced operator of a pending swap -> the vehicle
//     the incoming operator vacated;
//  3. the driver is the displaced operator of a pending non-swap row ->
//     reserved, no vehicle;
//  4. otherwise the live assignment.
func (wc *WorkingCopy) VehicleForDriver(uid string) (*models.Vehicle, Source) {
	// Tier 1 scans every row: a later row staging this driver somewhere
	// outranks an earlier row that merely displaced them.
	for _, raw := range wc.rows {
		if row, ok := raw.(*DriverRow); ok && row.NewOperator.UID == uid {
			return wc.Vehicles[row.BusID], SourceStaged
		}
	}
	for _, raw := range wc.rows {
		row, ok := raw.(*DriverRow)
		if !ok || row.PreviousOperator == nil || row.PreviousOperator.UID != uid {
			continue
		}
		if row.IsSwap && row.NewOperator.PreviousBusID != nil {
			return wc.Vehicles[*row.NewOperator.PreviousBusID], SourceStaged
		}
		return nil, SourceStaged // displaced to the reserve pool
	}
	d, ok := wc.Drivers[uid]
	if !ok || d.Reserved() {
		return nil, SourceLive
	}
	return wc.Vehicles[*d.AssignedBusID], SourceLive
}

// RouteForVehicle resolves the effective route of a vehicle. A pending
// route row wins; otherwise the live route is returned with the stop count
// taken from the Route entity, which also repairs a stale cached route
// name on the vehicle.
func (wc *WorkingCopy) RouteForVehicle(busID string) (*RouteView, Source) {
	if row, ok := wc.RowForVehicle(busID, KindRoute).(*RouteRow); ok && row != nil {
		return &RouteView{
			RouteID:   row.NewRouteID,
			Name:      row.NewRouteName,
			StopCount: row.NewStopCount,
		}, SourceStaged
	}
	v, ok := wc.Vehicles[busID]
	if !ok || v.RouteID == nil {
		return nil, SourceLive
	}
	view := &RouteView{RouteID: *v.RouteID}
	if v.RouteName != nil {
		view.Name = *v.RouteName
	}
	if route, ok := wc.Routes[*v.RouteID]; ok {
		view.Name = route.Name
		view.StopCount = route.StopCount
	}
	return view, SourceLive
}
