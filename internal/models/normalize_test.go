package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDriver(t *testing.T) {
	t.Run("camelCase legacy document", func(t *testing.T) {
		doc := map[string]interface{}{
			"driverId":      "d7",
			"employeeId":    "EMP-007",
			"fullName":      "Grace Muthoni",
			"assignedBusId": "bus-7",
			"shift":         "morning",
		}
		d, err := NormalizeDriver(doc)
		require.NoError(t, err)
		assert.Equal(t, "d7", d.UID)
		assert.Equal(t, "EMP-007", d.EmployeeID)
		assert.Equal(t, "Grace Muthoni", d.Name)
		require.NotNil(t, d.AssignedBusID)
		assert.Equal(t, "bus-7", *d.AssignedBusID)
		assert.False(t, d.IsReserved)
		assert.Equal(t, "active", d.Status)
	})

	t.Run("reserved flag recomputed from bus reference", func(t *testing.T) {
		doc := map[string]interface{}{
			"uid":         "d8",
			"employee_id": "EMP-008",
			"name":        "Peter Kamau",
			"is_reserved": false, // lies: no bus assigned
		}
		d, err := NormalizeDriver(doc)
		require.NoError(t, err)
		assert.Nil(t, d.AssignedBusID)
		assert.True(t, d.IsReserved)
	})

	t.Run("missing uid", func(t *testing.T) {
		_, err := NormalizeDriver(map[string]interface{}{"name": "Nobody"})
		assert.Error(t, err)
	})
}

func TestNormalizeVehicle(t *testing.T) {
	t.Run("active driver backfilled", func(t *testing.T) {
		doc := map[string]interface{}{
			"busId":     "bus-9",
			"busNumber": "KEA 900C",
			"driverId":  "d9",
			"capacity":  float64(33), // JSON numbers decode as float64
			"occupancy": "12",
		}
		v, err := NormalizeVehicle(doc)
		require.NoError(t, err)
		assert.Equal(t, "bus-9", v.BusID)
		require.NotNil(t, v.AssignedDriverID)
		assert.Equal(t, "d9", *v.AssignedDriverID)
		require.NotNil(t, v.ActiveDriverID)
		assert.Equal(t, "d9", *v.ActiveDriverID)
		assert.Equal(t, 33, v.Capacity)
		assert.Equal(t, 12, v.Occupancy)
	})

	t.Run("missing bus number", func(t *testing.T) {
		_, err := NormalizeVehicle(map[string]interface{}{"bus_id": "bus-10"})
		assert.Error(t, err)
	})
}

func TestNormalizeRoute(t *testing.T) {
	t.Run("stop list recomputes stop count", func(t *testing.T) {
		doc := map[string]interface{}{
			"routeId":    "route-5",
			"name":       "Hostel Shuttle",
			"stop_count": float64(99), // stale, recomputed below
			"stops": []interface{}{
				map[string]interface{}{"name": "Main Gate", "lat": -1.2921, "lng": 36.8219},
				map[string]interface{}{"name": "Library", "seq": float64(2)},
			},
		}
		r, err := NormalizeRoute(doc)
		require.NoError(t, err)
		assert.Equal(t, 2, r.StopCount)
		require.Len(t, r.Stops, 2)
		assert.Equal(t, 1, r.Stops[0].Seq)
		assert.Equal(t, -1.2921, r.Stops[0].Lat)
		assert.True(t, r.Active)
	})

	t.Run("explicit inactive flag", func(t *testing.T) {
		doc := map[string]interface{}{
			"route_id": "route-6",
			"name":     "Night Run",
			"active":   false,
		}
		r, err := NormalizeRoute(doc)
		require.NoError(t, err)
		assert.False(t, r.Active)
	})

	t.Run("malformed stop", func(t *testing.T) {
		doc := map[string]interface{}{
			"route_id": "route-7",
			"name":     "Bad Stops",
			"stops":    []interface{}{"not an object"},
		}
		_, err := NormalizeRoute(doc)
		assert.Error(t, err)
	})
}
