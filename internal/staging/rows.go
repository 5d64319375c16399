package staging

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"fleet_ops/internal/models"
)

// RowKind discriminates the staging row sum type. A vehicle may carry at
// most one pending row of each kind; staging a second one replaces the
// first.
type RowKind string

const (
	KindDriver RowKind = "driver"
	KindRoute  RowKind = "route"
)

// ChangeType classifies a driver row.
type ChangeType string

const (
	ChangeAssign  ChangeType = "assign"
	ChangeReserve ChangeType = "reserve"
	ChangeSwap    ChangeType = "swap"
)

// StagingRow is one pending, not-yet-durable reassignment targeting exactly
// one vehicle. Rows are immutable once created; to amend one, stage a
// replacement.
type StagingRow interface {
	RowID() string
	Kind() RowKind
	TargetBus() string
	Label() string
	CreatedAt() time.Time
	CreatedBy() string
}

// OperatorSnapshot is a value copy of the driver fields a row needs. Rows
// never hold pointers into the working copy.
type OperatorSnapshot struct {
	UID           string  `json:"uid"`
	EmployeeID    string  `json:"employee_id"`
	Name          string  `json:"name"`
	PreviousBusID *string `json:"previous_bus_id"` // bus the driver held when the row was created
}

func snapshotOperator(d *models.Driver) OperatorSnapshot {
	return OperatorSnapshot{
		UID:           d.UID,
		EmployeeID:    d.EmployeeID,
		Name:          d.Name,
		PreviousBusID: copyStrPtr(d.AssignedBusID),
	}
}

// DriverRow stages a driver assignment, reservation, or swap on one vehicle.
type DriverRow struct {
	ID               string            `json:"id"`
	BusID            string            `json:"bus_id"`
	BusLabel         string            `json:"bus_label"`
	ChangeType       ChangeType        `json:"change_type"`
	NewOperator      OperatorSnapshot  `json:"new_operator"`
	PreviousOperator *OperatorSnapshot `json:"previous_operator"`
	IsSwap           bool              `json:"is_swap"`
	StagedAt         time.Time         `json:"staged_at"`
	StagedBy         string            `json:"staged_by"`
}

func (r *DriverRow) RowID() string        { return r.ID }
func (r *DriverRow) Kind() RowKind        { return KindDriver }
func (r *DriverRow) TargetBus() string    { return r.BusID }
func (r *DriverRow) Label() string        { return r.BusLabel }
func (r *DriverRow) CreatedAt() time.Time { return r.StagedAt }
func (r *DriverRow) CreatedBy() string    { return r.StagedBy }

// RouteRow stages a route change on one vehicle.
type RouteRow struct {
	ID                string    `json:"id"`
	BusID             string    `json:"bus_id"`
	BusLabel          string    `json:"bus_label"`
	PreviousRouteID   *string   `json:"previous_route_id"`
	PreviousRouteName *string   `json:"previous_route_name"`
	NewRouteID        string    `json:"new_route_id"`
	NewRouteName      string    `json:"new_route_name"`
	NewStopCount      int       `json:"new_stop_count"`
	StagedAt          time.Time `json:"staged_at"`
	StagedBy          string    `json:"staged_by"`
}

func (r *RouteRow) RowID() string        { return r.ID }
func (r *RouteRow) Kind() RowKind        { return KindRoute }
func (r *RouteRow) TargetBus() string    { return r.BusID }
func (r *RouteRow) Label() string        { return r.BusLabel }
func (r *RouteRow) CreatedAt() time.Time { return r.StagedAt }
func (r *RouteRow) CreatedBy() string    { return r.StagedBy }

// VehicleLabel renders the display label for a vehicle: "Bus-<N> (<number>)"
// with N parsed from the numeric suffix of the bus id. Ids with no numeric
// suffix fall back to "<number> (<id>)".
func VehicleLabel(v *models.Vehicle) string {
	if n, ok := numericSuffix(v.BusID); ok {
		return fmt.Sprintf("Bus-%s (%s)", n, v.BusNumber)
	}
	return fmt.Sprintf("%s (%s)", v.BusNumber, v.BusID)
}

func numericSuffix(id string) (string, bool) {
	trimmed := strings.TrimRightFunc(id, unicode.IsDigit)
	if len(trimmed) == len(id) {
		return "", false
	}
	digits := strings.TrimLeft(id[len(trimmed):], "0")
	if digits == "" {
		digits = "0"
	}
	return digits, true
}

// NewAssignRow stages newDriver onto the vehicle. The change is classified
// as a swap when a different driver currently holds the vehicle and the
// incoming driver holds one of their own; otherwise it is a plain assign
// and any displaced driver goes to the reserve pool.
func NewAssignRow(vehicle *models.Vehicle, newDriver *models.Driver, previousDriver *models.Driver, actor string) *DriverRow {
	row := &DriverRow{
		ID:          uuid.NewString(),
		BusID:       vehicle.BusID,
		BusLabel:    VehicleLabel(vehicle),
		ChangeType:  ChangeAssign,
		NewOperator: snapshotOperator(newDriver),
		StagedAt:    time.Now().UTC(),
		StagedBy:    actor,
	}
	if previousDriver != nil {
		snap := snapshotOperator(previousDriver)
		row.PreviousOperator = &snap
		if previousDriver.UID != newDriver.UID && newDriver.AssignedBusID != nil {
			row.ChangeType = ChangeSwap
			row.IsSwap = true
		}
	}
	return row
}

// NewSwapRow stages an explicit swap: incoming takes the vehicle, current
// takes the vehicle incoming vacated. Used when the caller already knows
// both sides.
func NewSwapRow(vehicle *models.Vehicle, currentDriver *models.Driver, incomingDriver *models.Driver, actor string) *DriverRow {
	current := snapshotOperator(currentDriver)
	return &DriverRow{
		ID:               uuid.NewString(),
		BusID:            vehicle.BusID,
		BusLabel:         VehicleLabel(vehicle),
		ChangeType:       ChangeSwap,
		NewOperator:      snapshotOperator(incomingDriver),
		PreviousOperator: &current,
		IsSwap:           true,
		StagedAt:         time.Now().UTC(),
		StagedBy:         actor,
	}
}

// NewReserveRow stages incoming onto the vehicle with the explicit intent
// that the displaced driver becomes reserved rather than swapped.
func NewReserveRow(vehicle *models.Vehicle, currentDriver *models.Driver, incomingDriver *models.Driver, actor string) *DriverRow {
	row := &DriverRow{
		ID:          uuid.NewString(),
		BusID:       vehicle.BusID,
		BusLabel:    VehicleLabel(vehicle),
		ChangeType:  ChangeReserve,
		NewOperator: snapshotOperator(incomingDriver),
		StagedAt:    time.Now().UTC(),
		StagedBy:    actor,
	}
	if currentDriver != nil {
		snap := snapshotOperator(currentDriver)
		row.PreviousOperator = &snap
	}
	return row
}

// refreshRow re-derives a row's snapshots from the working copy's current
// state. A row built against the merged view carries the staged state of
// the pending row it replaces; once that row is reverted, those snapshots
// describe a state that no longer holds and must be recaptured.
func refreshRow(row StagingRow, wc *WorkingCopy) {
	switch r := row.(type) {
	case *DriverRow:
		refreshDriverRow(r, wc)
	case *RouteRow:
		refreshRouteRow(r, wc)
	}
}

func refreshDriverRow(row *DriverRow, wc *WorkingCopy) {
	incoming, ok := wc.Drivers[row.NewOperator.UID]
	if !ok {
		return
	}
	row.NewOperator = snapshotOperator(incoming)

	vehicle, ok := wc.Vehicles[row.BusID]
	if !ok {
		return
	}
	row.PreviousOperator = nil
	if vehicle.AssignedDriverID != nil && *vehicle.AssignedDriverID != incoming.UID {
		if prev, ok := wc.Drivers[*vehicle.AssignedDriverID]; ok {
			snap := snapshotOperator(prev)
			row.PreviousOperator = &snap
		}
	}

	// An explicit reserve keeps its intent; otherwise re-classify the same
	// way NewAssignRow does.
	if row.ChangeType == ChangeReserve {
		row.IsSwap = false
		return
	}
	row.IsSwap = row.PreviousOperator != nil && row.NewOperator.PreviousBusID != nil
	if row.IsSwap {
		row.ChangeType = ChangeSwap
	} else {
		row.ChangeType = ChangeAssign
	}
}

func refreshRouteRow(row *RouteRow, wc *WorkingCopy) {
	vehicle, ok := wc.Vehicles[row.BusID]
	if !ok {
		return
	}
	row.PreviousRouteID = copyStrPtr(vehicle.RouteID)
	row.PreviousRouteName = copyStrPtr(vehicle.RouteName)
}

// NewRouteRow stages a route change on the vehicle.
func NewRouteRow(vehicle *models.Vehicle, previousRouteID, previousRouteName *string, newRoute *models.Route, actor string) *RouteRow {
	return &RouteRow{
		ID:                uuid.NewString(),
		BusID:             vehicle.BusID,
		BusLabel:          VehicleLabel(vehicle),
		PreviousRouteID:   copyStrPtr(previousRouteID),
		PreviousRouteName: copyStrPtr(previousRouteName),
		NewRouteID:        newRoute.RouteID,
		NewRouteName:      newRoute.Name,
		NewStopCount:      newRoute.StopCount,
		StagedAt:          time.Now().UTC(),
		StagedBy:          actor,
	}
}
