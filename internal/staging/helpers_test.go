package staging

import (
	"fleet_ops/internal/models"
)

// Shared fixture: three drivers (two assigned, one reserved), four buses
// (one driverless, one locked by an active trip), three routes (one
// inactive).

func sptr(s string) *string { return &s }

func fixtureFleet() ([]models.Driver, []models.Vehicle, []models.Route) {
	drivers := []models.Driver{
		{UID: "d1", EmployeeID: "EMP-001", Name: "Alice Wanjiku", AssignedBusID: sptr("bus-1"), AssignedRouteID: sptr("route-1"), Shift: "morning", Status: "active"},
		{UID: "d2", EmployeeID: "EMP-002", Name: "Brian Otieno", AssignedBusID: sptr("bus-2"), Shift: "morning", Status: "active"},
		{UID: "d3", EmployeeID: "EMP-003", Name: "Carol Njeri", IsReserved: true, Shift: "evening", Status: "active"},
	}
	vehicles := []models.Vehicle{
		{BusID: "bus-1", BusNumber: "KDA 123X", AssignedDriverID: sptr("d1"), ActiveDriverID: sptr("d1"), RouteID: sptr("route-1"), RouteName: sptr("Campus Loop"), Capacity: 33, Occupancy: 12},
		{BusID: "bus-2", BusNumber: "KDB 456Y", AssignedDriverID: sptr("d2"), ActiveDriverID: sptr("d2"), Capacity: 33},
		{BusID: "bus-3", BusNumber: "KDC 789Z", Capacity: 14},
		{BusID: "bus-4", BusNumber: "KDD 012A", ActiveTripID: sptr("trip-77"), Capacity: 51},
	}
	routes := []models.Route{
		{RouteID: "route-1", Name: "Campus Loop", StopCount: 5, Active: true},
		{RouteID: "route-2", Name: "Town Express", StopCount: 8, Active: true},
		{RouteID: "route-3", Name: "Old Airport", StopCount: 3, Active: false},
	}
	return drivers, vehicles, routes
}

func fixtureCopy() *WorkingCopy {
	return NewWorkingCopy(fixtureFleet())
}
