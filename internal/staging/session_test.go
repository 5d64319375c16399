package staging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStageRejectsInvalidRow(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 0)

	row := NewAssignRow(wc.Vehicles["bus-4"], wc.Drivers["d3"], nil, "admin-1")
	verr := sess.Stage(row)
	require.NotNil(t, verr)
	assert.Equal(t, ErrVehicleOnTrip, verr.Code)
	assert.Empty(t, sess.Rows())
}

func TestSessionStageReplacesSameKindRow(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 0)

	first := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	require.Nil(t, sess.Stage(first))

	// Second driver row on the same vehicle replaces the first; d1 stays
	// in place because the first row's displacement is undone.
	second := NewSwapRow(wc.Vehicles["bus-1"], wc.Drivers["d1"], wc.Drivers["d2"], "admin-1")
	require.Nil(t, sess.Stage(second))

	rows := sess.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].RowID())
	assert.Nil(t, wc.Drivers["d3"].AssignedBusID)
	assert.Equal(t, "d2", *wc.Vehicles["bus-1"].AssignedDriverID)
}

// The replacement row is built the way the API layer builds rows, against
// the merged view, so before staging its previous-operator snapshot names
// the staged driver of the row being replaced. Stage must recapture the
// snapshots after the revert or the live driver dangles.
func TestSessionReplaceRowBuiltFromMergedView(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 0)

	current, _ := wc.DriverForVehicle("bus-1")
	first := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], current, "admin-1")
	require.Nil(t, sess.Stage(first))

	// Admin changes their mind: d2 instead of d3 on bus-1. The merged view
	// now reports d3 as the current driver.
	current, _ = wc.DriverForVehicle("bus-1")
	require.Equal(t, "d3", current.UID)
	second := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d2"], current, "admin-1")
	require.Nil(t, sess.Stage(second))

	rows := sess.Rows()
	require.Len(t, rows, 1)
	replacement, ok := rows[0].(*DriverRow)
	require.True(t, ok)
	require.NotNil(t, replacement.PreviousOperator)
	assert.Equal(t, "d1", replacement.PreviousOperator.UID)

	// Single effective truth: bus-1 is d2's, d1 took the bus d2 vacated,
	// d3 is back in reserve.
	driver, _ := wc.DriverForVehicle("bus-1")
	require.NotNil(t, driver)
	assert.Equal(t, "d2", driver.UID)
	vehicle, source := wc.VehicleForDriver("d1")
	require.NotNil(t, vehicle)
	assert.Equal(t, "bus-2", vehicle.BusID)
	assert.Equal(t, SourceStaged, source)
	assert.True(t, wc.Drivers["d3"].IsReserved)
	assert.Nil(t, wc.Drivers["d3"].AssignedBusID)
}

func TestSessionStageReportsInternalFailures(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 0)

	rowA := NewAssignRow(wc.Vehicles["bus-3"], wc.Drivers["d3"], nil, "admin-1")
	require.Nil(t, sess.Stage(rowA))
	b1 := wc.Vehicles["bus-1"]
	rowB := NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-2"], "admin-1")
	require.Nil(t, sess.Stage(rowB))

	// Corrupt the working copy behind the pending driver row; replacing
	// the route row now fails mid-revert when that row is replayed.
	delete(wc.Drivers, "d3")
	replacement := NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-1"], "admin-1")
	verr := sess.Stage(replacement)
	require.NotNil(t, verr)
	assert.Equal(t, ErrInternal, verr.Code)
}

func TestSessionDriverAndRouteRowsCoexist(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 0)

	driverRow := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	require.Nil(t, sess.Stage(driverRow))
	b1 := wc.Vehicles["bus-1"]
	routeRow := NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-2"], "admin-1")
	require.Nil(t, sess.Stage(routeRow))

	assert.Len(t, sess.Rows(), 2)
}

func TestSessionUnstage(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 0)

	row := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	require.Nil(t, sess.Stage(row))
	require.NoError(t, sess.Unstage(row.ID))

	assert.Empty(t, sess.Rows())
	assert.Equal(t, "d1", *wc.Vehicles["bus-1"].AssignedDriverID)
	assert.Error(t, sess.Unstage(row.ID))
}

func TestSessionConfirmReturnsBatchInOrder(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", time.Hour)

	rowA := NewAssignRow(wc.Vehicles["bus-3"], wc.Drivers["d3"], nil, "admin-1")
	require.Nil(t, sess.Stage(rowA))
	b1 := wc.Vehicles["bus-1"]
	rowB := NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-2"], "admin-1")
	require.Nil(t, sess.Stage(rowB))

	rows, err := sess.Confirm()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rowA.ID, rows[0].RowID())
	assert.Equal(t, rowB.ID, rows[1].RowID())
}

func TestSessionConfirmEmpty(t *testing.T) {
	sess := NewSession(fixtureCopy(), "admin-1", 0)
	_, err := sess.Confirm()
	assert.Error(t, err)
}

func TestSessionAutoRevertOnWindowExpiry(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 30*time.Millisecond)

	row := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	require.Nil(t, sess.Stage(row))

	time.Sleep(150 * time.Millisecond)

	assert.True(t, sess.Expired())
	assert.Empty(t, sess.Rows())
	assert.Equal(t, "d1", *wc.Vehicles["bus-1"].AssignedDriverID)
	assert.True(t, wc.Drivers["d3"].IsReserved)

	// The discarded batch can no longer be confirmed.
	_, err := sess.Confirm()
	assert.Error(t, err)
}

func TestSessionConfirmBeforeExpiryCancelsCountdown(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 60*time.Millisecond)

	row := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	require.Nil(t, sess.Stage(row))

	// Confirm inside the window, then wait past it: no automatic revert
	// may fire.
	rows, err := sess.Confirm()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	time.Sleep(150 * time.Millisecond)
	assert.False(t, sess.Expired())
	assert.Equal(t, "d3", *wc.Vehicles["bus-1"].AssignedDriverID)
}

func TestSessionStaleCountdownCallbackIsNoop(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", time.Hour)

	row := NewAssignRow(wc.Vehicles["bus-1"], wc.Drivers["d3"], wc.Drivers["d1"], "admin-1")
	require.Nil(t, sess.Stage(row))

	// A countdown superseded by the restart above may still deliver its
	// callback; the stale generation must make it a no-op.
	sess.autoRevert(0)

	assert.False(t, sess.Expired())
	assert.Len(t, sess.Rows(), 1)
}

func TestSessionStageRestartsCountdown(t *testing.T) {
	wc := fixtureCopy()
	sess := NewSession(wc, "admin-1", 80*time.Millisecond)

	rowA := NewAssignRow(wc.Vehicles["bus-3"], wc.Drivers["d3"], nil, "admin-1")
	require.Nil(t, sess.Stage(rowA))

	// A second stage halfway through pushes the deadline out.
	time.Sleep(50 * time.Millisecond)
	b1 := wc.Vehicles["bus-1"]
	rowB := NewRouteRow(b1, b1.RouteID, b1.RouteName, wc.Routes["route-2"], "admin-1")
	require.Nil(t, sess.Stage(rowB))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, sess.Expired())
	assert.Len(t, sess.Rows(), 2)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, sess.Expired())
	assert.Empty(t, sess.Rows())
}
