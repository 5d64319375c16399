package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_ops/internal/models"
	"fleet_ops/internal/staging"
	"fleet_ops/internal/store"
)

func sptr(s string) *string { return &s }

func fixtureFleet() ([]models.Driver, []models.Vehicle, []models.Route) {
	drivers := []models.Driver{
		{UID: "d1", EmployeeID: "EMP-001", Name: "Alice Wanjiku", AssignedBusID: sptr("bus-1"), Shift: "morning", Status: "active"},
		{UID: "d2", EmployeeID: "EMP-002", Name: "Brian Otieno", AssignedBusID: sptr("bus-2"), Shift: "morning", Status: "active"},
		{UID: "d3", EmployeeID: "EMP-003", Name: "Carol Njeri", IsReserved: true, Shift: "evening", Status: "active"},
	}
	vehicles := []models.Vehicle{
		{BusID: "bus-1", BusNumber: "KDA 123X", AssignedDriverID: sptr("d1"), ActiveDriverID: sptr("d1"), RouteID: sptr("route-1"), RouteName: sptr("Campus Loop"), Capacity: 33},
		{BusID: "bus-2", BusNumber: "KDB 456Y", AssignedDriverID: sptr("d2"), ActiveDriverID: sptr("d2"), Capacity: 33},
		{BusID: "bus-3", BusNumber: "KDC 789Z", Capacity: 14},
	}
	routes := []models.Route{
		{RouteID: "route-1", Name: "Campus Loop", StopCount: 5, Active: true},
		{RouteID: "route-2", Name: "Town Express", StopCount: 8, Active: true},
	}
	return drivers, vehicles, routes
}

// newEngine seeds a memory store and builds a matching working copy so
// tests can stage rows the same way a session would.
func newEngine(t *testing.T) (*store.MemoryStore, *staging.WorkingCopy, *CommitService) {
	t.Helper()
	drivers, vehicles, routes := fixtureFleet()
	st := store.NewMemoryStore()
	st.Seed(drivers, vehicles, routes)
	wc := staging.NewWorkingCopy(drivers, vehicles, routes)
	return st, wc, NewCommitService(st)
}

func TestCommitAssignWritesEntitiesAndLog(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	// Reserved d3 takes bus-1; d1 is displaced to the reserve pool.
	row := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	result := svc.Commit(ctx, []staging.StagingRow{row}, "admin-1", "Jane Admin")

	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 0, result.FailureCount)
	require.Equal(t, RowCommitted, result.Rows[0].Status)

	bus, err := st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "d3", *bus.AssignedDriverID)
	assert.Equal(t, "d3", *bus.ActiveDriverID)

	incoming, err := st.GetDriver(ctx, "d3")
	require.NoError(t, err)
	assert.Equal(t, "bus-1", *incoming.AssignedBusID)
	assert.False(t, incoming.IsReserved)

	displaced, err := st.GetDriver(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, displaced.AssignedBusID)
	assert.True(t, displaced.IsReserved)

	entry, err := st.GetLog(ctx, result.Rows[0].OperationID)
	require.NoError(t, err)
	assert.Equal(t, models.LogTypeAssign, entry.Type)
	assert.Equal(t, models.LogStatusCommitted, entry.Status)
	assert.Equal(t, "admin-1", entry.ActorID)
	assert.Equal(t, "Jane Admin", entry.ActorLabel)
	assert.Contains(t, entry.Summary, "Carol Njeri")

	records, err := entry.ChangeRecords()
	require.NoError(t, err)
	// Target bus, incoming driver, displaced driver.
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.NotEmpty(t, rec.Before)
		assert.NotEmpty(t, rec.After)
	}
	assert.Equal(t, "buses", records[0].Collection)
	assert.Equal(t, "bus-1", records[0].DocumentID)
}

func TestCommitBatchIsPerRowAtomic(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	// Row 2 targets bus-1; fail exactly that write.
	st.FailWrite = func(collection, id string) error {
		if collection == "buses" && id == "bus-1" {
			return errors.New("write refused")
		}
		return nil
	}

	row1 := staging.NewAssignRow(wc.Vehicles["bus-3"], wc.Drivers["d3"], nil, "admin-1")
	b1 := wc.Vehicles["bus-1"]
	row2 := staging.NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-2"], "admin-1")
	b2 := wc.Vehicles["bus-2"]
	row3 := staging.NewRouteRow(b2, b2.RouteID, b2.RouteName, wc.Routes["route-2"], "admin-1")

	result := svc.Commit(ctx, []staging.StagingRow{row1, row2, row3}, "admin-1", "Jane Admin")

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, RowCommitted, result.Rows[0].Status)
	assert.Equal(t, RowFailed, result.Rows[1].Status)
	assert.Contains(t, result.Rows[1].Error, "write refused")
	assert.Equal(t, RowCommitted, result.Rows[2].Status)

	// Rows 1 and 3 are durable; row 2 left no trace on the entity.
	bus3, err := st.GetVehicle(ctx, "bus-3")
	require.NoError(t, err)
	assert.Equal(t, "d3", *bus3.AssignedDriverID)

	bus1, err := st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "route-1", *bus1.RouteID)

	bus2, err := st.GetVehicle(ctx, "bus-2")
	require.NoError(t, err)
	assert.Equal(t, "route-2", *bus2.RouteID)

	// Two committed entries plus one failed entry in the audit trail.
	entries, err := st.ListLogs(ctx, "", 0)
	require.NoError(t, err)
	var committed, failed int
	for _, entry := range entries {
		switch entry.Status {
		case models.LogStatusCommitted:
			committed++
		case models.LogStatusFailed:
			failed++
		}
	}
	assert.Equal(t, 2, committed)
	assert.Equal(t, 1, failed)
}

func TestCommitDetectsExternalConflict(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	row := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")

	// Another process reassigns bus-1 to d2 after staging.
	bus, err := st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	bus.AssignedDriverID = sptr("d2")
	bus.ActiveDriverID = sptr("d2")
	require.NoError(t, st.SaveVehicle(ctx, bus))

	result := svc.Commit(ctx, []staging.StagingRow{row}, "admin-1", "Jane Admin")
	require.Equal(t, RowFailed, result.Rows[0].Status)
	assert.Contains(t, result.Rows[0].Error, "changed since staging")

	// The conflicting durable state is untouched.
	bus, err = st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "d2", *bus.AssignedDriverID)
}

func TestCommitNoopWhenAlreadyInPlace(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	row := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d1"], wc.Drivers["d1"], "admin-1")
	result := svc.Commit(ctx, []staging.StagingRow{row}, "admin-1", "Jane Admin")

	require.Equal(t, RowNoop, result.Rows[0].Status)
	assert.Equal(t, 1, result.SuccessCount)

	entry, err := st.GetLog(ctx, result.Rows[0].OperationID)
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusNoop, entry.Status)
}

func TestCommitVehicleOnActiveTripFails(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	// Trip starts between staging and commit.
	bus, err := st.GetVehicle(ctx, "bus-3")
	require.NoError(t, err)
	bus.ActiveTripID = sptr("trip-42")
	require.NoError(t, st.SaveVehicle(ctx, bus))

	row := staging.NewAssignRow(wc.Vehicles["bus-3"], wc.Drivers["d3"], nil, "admin-1")
	result := svc.Commit(ctx, []staging.StagingRow{row}, "admin-1", "Jane Admin")

	require.Equal(t, RowFailed, result.Rows[0].Status)
	assert.Contains(t, result.Rows[0].Error, "trip-42")
}

func TestSwapCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	origD1, err := st.GetDriver(ctx, "d1")
	require.NoError(t, err)
	origD2, err := st.GetDriver(ctx, "d2")
	require.NoError(t, err)

	first := staging.NewSwapRow(wc.Vehicles["bus-1"], wc.Drivers["d1"], wc.Drivers["d2"], "admin-1")
	require.NoError(t, staging.Apply(first, wc))
	inverse := staging.NewSwapRow(wc.Vehicles["bus-1"], wc.Drivers["d2"], wc.Drivers["d1"], "admin-1")

	result := svc.Commit(ctx, []staging.StagingRow{first, inverse}, "admin-1", "Jane Admin")
	require.Equal(t, 2, result.SuccessCount)
	require.Equal(t, 0, result.FailureCount)

	d1, err := st.GetDriver(ctx, "d1")
	require.NoError(t, err)
	d2, err := st.GetDriver(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, *origD1, *d1)
	assert.Equal(t, *origD2, *d2)

	bus1, err := st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "d1", *bus1.AssignedDriverID)
	bus2, err := st.GetVehicle(ctx, "bus-2")
	require.NoError(t, err)
	assert.Equal(t, "d2", *bus2.AssignedDriverID)
}

// Staging d3 onto bus-1, then replacing that row with d2 through the
// merged view (the way the API layer builds rows), must commit cleanly:
// the replacement's assumptions are recaptured against live state, so the
// conflict guard sees exactly what the database holds.
func TestCommitAfterReplacingPendingRow(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)
	sess := staging.NewSession(wc, "admin-1", 0)

	current, _ := wc.DriverForVehicle("bus-1")
	first := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], current, "admin-1")
	require.Nil(t, sess.Stage(first))

	current, _ = wc.DriverForVehicle("bus-1")
	second := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d2"], current, "admin-1")
	require.Nil(t, sess.Stage(second))

	rows, err := sess.Confirm()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	result := svc.Commit(ctx, rows, "admin-1", "Jane Admin")
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 0, result.FailureCount)
	require.Equal(t, RowCommitted, result.Rows[0].Status)

	bus1, err := st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "d2", *bus1.AssignedDriverID)

	// d2 held bus-2, so the replacement is a swap: d1 takes bus-2.
	displaced, err := st.GetDriver(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, displaced.AssignedBusID)
	assert.Equal(t, "bus-2", *displaced.AssignedBusID)

	// d3's staged assignment was replaced, never committed.
	reserved, err := st.GetDriver(ctx, "d3")
	require.NoError(t, err)
	assert.True(t, reserved.IsReserved)
	assert.Nil(t, reserved.AssignedBusID)
}

func TestRollbackRestoresBeforeState(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	row := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	result := svc.Commit(ctx, []staging.StagingRow{row}, "admin-1", "Jane Admin")
	require.Equal(t, RowCommitted, result.Rows[0].Status)
	opID := result.Rows[0].OperationID

	rb, err := svc.Rollback(ctx, opID, "admin-2", "Bob Admin")
	require.NoError(t, err)
	assert.Equal(t, opID, rb.RollbackOf)
	assert.Equal(t, 3, rb.RestoredCount)

	// Durable state is back to the pre-commit shape.
	bus, err := st.GetVehicle(ctx, "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "d1", *bus.AssignedDriverID)
	d3, err := st.GetDriver(ctx, "d3")
	require.NoError(t, err)
	assert.Nil(t, d3.AssignedBusID)
	assert.True(t, d3.IsReserved)

	// A new linked entry exists; the original is untouched.
	rbEntry, err := st.GetLog(ctx, rb.OperationID)
	require.NoError(t, err)
	assert.Equal(t, models.LogTypeRollback, rbEntry.Type)
	assert.Equal(t, models.LogStatusCommitted, rbEntry.Status)
	require.NotNil(t, rbEntry.RollbackOf)
	assert.Equal(t, opID, *rbEntry.RollbackOf)

	original, err := st.GetLog(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusCommitted, original.Status)
}

func TestRollbackRejections(t *testing.T) {
	ctx := context.Background()
	st, wc, svc := newEngine(t)

	row := staging.NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	result := svc.Commit(ctx, []staging.StagingRow{row}, "admin-1", "Jane Admin")
	opID := result.Rows[0].OperationID

	t.Run("unknown operation", func(t *testing.T) {
		_, err := svc.Rollback(ctx, "nope", "admin-1", "Jane Admin")
		var rbErr *RollbackError
		require.ErrorAs(t, err, &rbErr)
		assert.Contains(t, rbErr.Reason, "not found")
	})

	rb, err := svc.Rollback(ctx, opID, "admin-1", "Jane Admin")
	require.NoError(t, err)

	t.Run("already rolled back", func(t *testing.T) {
		_, err := svc.Rollback(ctx, opID, "admin-1", "Jane Admin")
		var rbErr *RollbackError
		require.ErrorAs(t, err, &rbErr)
		assert.Contains(t, rbErr.Reason, "already rolled back")
	})

	t.Run("rollback of a rollback", func(t *testing.T) {
		_, err := svc.Rollback(ctx, rb.OperationID, "admin-1", "Jane Admin")
		var rbErr *RollbackError
		require.ErrorAs(t, err, &rbErr)
		assert.Contains(t, rbErr.Reason, "itself a rollback")
	})

	t.Run("non-committed entry", func(t *testing.T) {
		entry := &models.ReassignmentLog{
			OperationID: "op-failed",
			Type:        models.LogTypeAssign,
			Status:      models.LogStatusFailed,
		}
		require.NoError(t, st.AppendLog(ctx, entry))
		_, err := svc.Rollback(ctx, "op-failed", "admin-1", "Jane Admin")
		var rbErr *RollbackError
		require.ErrorAs(t, err, &rbErr)
		assert.Contains(t, rbErr.Reason, "not committed")
	})
}

func TestListLogsFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	_, wc, svc := newEngine(t)

	rowA := staging.NewAssignRow(wc.Vehicles["bus-3"], wc.Drivers["d3"], nil, "admin-1")
	b1 := wc.Vehicles["bus-1"]
	rowB := staging.NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-2"], "admin-1")
	svc.Commit(ctx, []staging.StagingRow{rowA, rowB}, "admin-1", "Jane Admin")

	all, err := svc.ListLogs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, models.LogTypeRouteChange, all[0].Type)

	assigns, err := svc.ListLogs(ctx, models.LogTypeAssign, 0)
	require.NoError(t, err)
	require.Len(t, assigns, 1)
	assert.Equal(t, models.LogTypeAssign, assigns[0].Type)

	limited, err := svc.ListLogs(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
