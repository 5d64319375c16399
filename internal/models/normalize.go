package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalization boundary for loosely-typed external documents (legacy
// exports, bulk import payloads). Every adapter here validates identity
// fields and repairs derived ones so the engine only ever sees canonical
// entities. Legacy documents use a mix of camelCase and snake_case keys;
// both spellings are accepted.

func docString(doc map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			switch s := v.(type) {
			case string:
				return strings.TrimSpace(s)
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func docStringPtr(doc map[string]interface{}, keys ...string) *string {
	if s := docString(doc, keys...); s != "" {
		return &s
	}
	return nil
}

func docInt(doc map[string]interface{}, keys ...string) int {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

func docBool(doc map[string]interface{}, keys ...string) (bool, bool) {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// NormalizeDriver builds a canonical Driver from a legacy document.
// IsReserved is recomputed from the bus reference rather than trusted,
// since legacy records frequently carry the two fields out of sync.
func NormalizeDriver(doc map[string]interface{}) (*Driver, error) {
	uid := docString(doc, "uid", "id", "driver_id", "driverId")
	if uid == "" {
		return nil, fmt.Errorf("driver document missing uid")
	}
	d := &Driver{
		UID:             uid,
		EmployeeID:      docString(doc, "employee_id", "employeeId", "staff_no"),
		Name:            docString(doc, "name", "full_name", "fullName"),
		AssignedBusID:   docStringPtr(doc, "assigned_bus_id", "assignedBusId", "bus_id", "busId"),
		AssignedRouteID: docStringPtr(doc, "assigned_route_id", "assignedRouteId"),
		Shift:           docString(doc, "shift"),
		Status:          docString(doc, "status"),
	}
	if d.Status == "" {
		d.Status = "active"
	}
	d.IsReserved = d.AssignedBusID == nil
	return d, nil
}

// NormalizeVehicle builds a canonical Vehicle from a legacy document.
// ActiveDriverID is backfilled from AssignedDriverID when absent so the
// two stay in lockstep.
func NormalizeVehicle(doc map[string]interface{}) (*Vehicle, error) {
	busID := docString(doc, "bus_id", "busId", "id", "vehicle_id", "vehicleId")
	if busID == "" {
		return nil, fmt.Errorf("vehicle document missing bus_id")
	}
	v := &Vehicle{
		BusID:            busID,
		BusNumber:        docString(doc, "bus_number", "busNumber", "registration", "vehicle_no"),
		AssignedDriverID: docStringPtr(doc, "assigned_driver_id", "assignedDriverId", "driver_id", "driverId"),
		ActiveDriverID:   docStringPtr(doc, "active_driver_id", "activeDriverId"),
		RouteID:          docStringPtr(doc, "route_id", "routeId"),
		RouteName:        docStringPtr(doc, "route_name", "routeName"),
		ActiveTripID:     docStringPtr(doc, "active_trip_id", "activeTripId", "current_trip_id"),
		Capacity:         docInt(doc, "capacity", "seats"),
		Occupancy:        docInt(doc, "occupancy", "occupied_seats"),
	}
	if v.BusNumber == "" {
		return nil, fmt.Errorf("vehicle %s missing bus_number", busID)
	}
	if v.ActiveDriverID == nil {
		v.ActiveDriverID = v.AssignedDriverID
	}
	return v, nil
}

// NormalizeRoute builds a canonical Route from a legacy document.
// StopCount is recomputed from the stop list when one is present.
func NormalizeRoute(doc map[string]interface{}) (*Route, error) {
	routeID := docString(doc, "route_id", "routeId", "id")
	if routeID == "" {
		return nil, fmt.Errorf("route document missing route_id")
	}
	r := &Route{
		RouteID:   routeID,
		Name:      docString(doc, "name", "route_name", "routeName"),
		StopCount: docInt(doc, "stop_count", "stopCount"),
		Active:    true,
	}
	if r.Name == "" {
		return nil, fmt.Errorf("route %s missing name", routeID)
	}
	if active, ok := docBool(doc, "active", "is_active", "isActive"); ok {
		r.Active = active
	}
	if raw, ok := doc["stops"].([]interface{}); ok {
		for i, item := range raw {
			stopDoc, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("route %s: stop %d is not an object", routeID, i)
			}
			name := docString(stopDoc, "name", "stop_name", "stopName")
			if name == "" {
				return nil, fmt.Errorf("route %s: stop %d missing name", routeID, i)
			}
			seq := docInt(stopDoc, "seq", "sequence", "order")
			if seq == 0 {
				seq = i + 1
			}
			r.Stops = append(r.Stops, Stop{
				Name:    name,
				Seq:     seq,
				Lat:     floatField(stopDoc, "lat", "latitude"),
				Lng:     floatField(stopDoc, "lng", "lon", "longitude"),
				RouteID: routeID,
			})
		}
		r.StopCount = len(r.Stops)
	}
	return r, nil
}

func floatField(doc map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}
