// Package services holds the durable side of the reassignment engine: the
// per-row batch commit with its audit trail, and the compensating rollback.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"

	"fleet_ops/internal/models"
	"fleet_ops/internal/staging"
	"fleet_ops/internal/store"
)

// Row statuses reported in a BatchResult.
const (
	RowCommitted = "committed"
	RowFailed    = "failed"
	RowNoop      = "no-op"
)

// RowResult is the outcome of committing one staging row.
type RowResult struct {
	RowID       string `json:"row_id"`
	BusID       string `json:"bus_id"`
	Status      string `json:"status"`
	OperationID string `json:"operation_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult aggregates a commit. Rows are reported in commit order; a
// failed row never aborts or reverses its siblings, so callers retain
// failed rows for retry while clearing the rest.
type BatchResult struct {
	Total        int         `json:"total"`
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
	Rows         []RowResult `json:"rows"`
}

// RollbackResult reports a successful compensating rollback.
type RollbackResult struct {
	OperationID   string `json:"operation_id"` // the new rollback entry
	RollbackOf    string `json:"rollback_of"`
	RestoredCount int    `json:"restored_count"`
	Summary       string `json:"summary"`
}

// CommitService persists staging rows one at a time against durable state
// and writes the append-only reassignment log.
type CommitService struct {
	store store.EntityStore
}

func NewCommitService(st store.EntityStore) *CommitService {
	return &CommitService{store: st}
}

// Commit persists the batch in staging order. Each row is independently
// re-validated against current durable state (not the session snapshot),
// written inside its own transaction, and logged. One row failing marks
// only that row failed.
func (s *CommitService) Commit(ctx context.Context, rows []staging.StagingRow, actorID, actorLabel string) BatchResult {
	result := BatchResult{Total: len(rows)}
	for _, row := range rows {
		rr := s.commitRow(ctx, row, actorID, actorLabel)
		if rr.Status == RowFailed {
			result.FailureCount++
		} else {
			result.SuccessCount++
		}
		result.Rows = append(result.Rows, rr)
	}
	logrus.WithFields(logrus.Fields{
		"actor":   actorID,
		"total":   result.Total,
		"success": result.SuccessCount,
		"failed":  result.FailureCount,
	}).Info("reassignment batch committed")
	return result
}

func (s *CommitService) commitRow(ctx context.Context, row staging.StagingRow, actorID, actorLabel string) RowResult {
	var (
		opID string
		err  error
	)
	switch r := row.(type) {
	case *staging.DriverRow:
		opID, err = s.commitDriverRow(ctx, r, actorID, actorLabel)
	case *staging.RouteRow:
		opID, err = s.commitRouteRow(ctx, r, actorID, actorLabel)
	default:
		err = fmt.Errorf("unknown staging row kind %q", row.Kind())
	}
	if err != nil {
		if errors.Is(err, errNoop) {
			return RowResult{RowID: row.RowID(), BusID: row.TargetBus(), Status: RowNoop, OperationID: opID}
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"row": row.RowID(),
			"bus": row.TargetBus(),
		}).Warn("staging row failed to commit")
		s.logFailure(ctx, row, actorID, actorLabel, err)
		return RowResult{RowID: row.RowID(), BusID: row.TargetBus(), Status: RowFailed, Error: err.Error()}
	}
	return RowResult{RowID: row.RowID(), BusID: row.TargetBus(), Status: RowCommitted, OperationID: opID}
}

// errNoop marks a row whose effect already holds durably.
var errNoop = errors.New("no-op")

func (s *CommitService) commitDriverRow(ctx context.Context, row *staging.DriverRow, actorID, actorLabel string) (string, error) {
	// Re-validate against durable state: the session snapshot may be
	// minutes old by the time the admin confirms.
	vehicle, err := s.store.GetVehicle(ctx, row.BusID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("vehicle %s no longer exists", row.BusID)
		}
		return "", err
	}
	if vehicle.InService() {
		return "", fmt.Errorf("vehicle %s is locked by active trip %s", row.BusID, *vehicle.ActiveTripID)
	}

	currentUID := ""
	if vehicle.AssignedDriverID != nil {
		currentUID = *vehicle.AssignedDriverID
	}
	if currentUID == row.NewOperator.UID {
		// Already durably in place; log the observation and move on.
		opID, err := s.appendNoopLog(ctx, row, actorID, actorLabel)
		if err != nil {
			return "", err
		}
		return opID, errNoop
	}

	// Conflict guard: the displaced operator the row assumed must still
	// hold the vehicle.
	expectedUID := ""
	if row.PreviousOperator != nil {
		expectedUID = row.PreviousOperator.UID
	}
	if currentUID != expectedUID {
		return "", &ConflictError{BusID: row.BusID, Expected: expectedUID, Actual: currentUID}
	}

	incoming, err := s.store.GetDriver(ctx, row.NewOperator.UID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("driver %s no longer exists", row.NewOperator.UID)
		}
		return "", err
	}

	var displaced *models.Driver
	if row.PreviousOperator != nil {
		displaced, err = s.store.GetDriver(ctx, row.PreviousOperator.UID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", fmt.Errorf("driver %s no longer exists", row.PreviousOperator.UID)
			}
			return "", err
		}
	}

	// On a swap the incoming driver's durable vehicle must still be the
	// one the row plans to hand to the displaced operator.
	var vacated *models.Vehicle
	incomingBusID := ""
	if incoming.AssignedBusID != nil {
		incomingBusID = *incoming.AssignedBusID
	}
	if row.NewOperator.PreviousBusID != nil && *row.NewOperator.PreviousBusID != row.BusID {
		if incomingBusID != *row.NewOperator.PreviousBusID {
			return "", &ConflictError{BusID: *row.NewOperator.PreviousBusID, Expected: row.NewOperator.UID, Actual: incomingBusID}
		}
		vacated, err = s.store.GetVehicle(ctx, *row.NewOperator.PreviousBusID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}

	// Before snapshots for the audit trail, taken from durable state at
	// this row's commit, not from the session-start snapshot.
	var changes []models.ChangeRecord
	changes = appendChange(changes, "buses", vehicle.BusID, *vehicle)
	changes = appendChange(changes, "drivers", incoming.UID, *incoming)
	if displaced != nil {
		changes = appendChange(changes, "drivers", displaced.UID, *displaced)
	}
	if vacated != nil {
		changes = appendChange(changes, "buses", vacated.BusID, *vacated)
	}

	// Apply the row to the durable copies, mirroring the staging mutator.
	uid := incoming.UID
	busID := vehicle.BusID
	vehicle.AssignedDriverID = &uid
	vehicle.ActiveDriverID = &uid
	incoming.AssignedBusID = &busID
	incoming.IsReserved = false
	if vacated != nil {
		if row.IsSwap && displaced != nil {
			dUID := displaced.UID
			vBusID := vacated.BusID
			vacated.AssignedDriverID = &dUID
			vacated.ActiveDriverID = &dUID
			displaced.AssignedBusID = &vBusID
			displaced.IsReserved = false
		} else {
			vacated.AssignedDriverID = nil
			vacated.ActiveDriverID = nil
		}
	}
	if displaced != nil && (!row.IsSwap || vacated == nil) {
		displaced.AssignedBusID = nil
		displaced.IsReserved = true
	}

	setAfter(changes, "buses", vehicle.BusID, *vehicle)
	setAfter(changes, "drivers", incoming.UID, *incoming)
	if displaced != nil {
		setAfter(changes, "drivers", displaced.UID, *displaced)
	}
	if vacated != nil {
		setAfter(changes, "buses", vacated.BusID, *vacated)
	}

	entry, err := s.newLogEntry(row, actorID, actorLabel, changes, driverRowSummary(row, incoming, displaced))
	if err != nil {
		return "", err
	}

	err = s.store.Transact(ctx, func(tx store.EntityStore) error {
		if err := tx.SaveVehicle(ctx, vehicle); err != nil {
			return err
		}
		if err := tx.SaveDriver(ctx, incoming); err != nil {
			return err
		}
		if displaced != nil {
			if err := tx.SaveDriver(ctx, displaced); err != nil {
				return err
			}
		}
		if vacated != nil {
			if err := tx.SaveVehicle(ctx, vacated); err != nil {
				return err
			}
		}
		return tx.AppendLog(ctx, entry)
	})
	if err != nil {
		return "", err
	}
	return entry.OperationID, nil
}

func (s *CommitService) commitRouteRow(ctx context.Context, row *staging.RouteRow, actorID, actorLabel string) (string, error) {
	vehicle, err := s.store.GetVehicle(ctx, row.BusID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("vehicle %s no longer exists", row.BusID)
		}
		return "", err
	}
	if vehicle.InService() {
		return "", fmt.Errorf("vehicle %s is locked by active trip %s", row.BusID, *vehicle.ActiveTripID)
	}
	route, err := s.store.GetRoute(ctx, row.NewRouteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("route %s no longer exists", row.NewRouteID)
		}
		return "", err
	}
	if !route.Active {
		return "", fmt.Errorf("route %s (%s) is not active", route.RouteID, route.Name)
	}
	if vehicle.RouteID != nil && *vehicle.RouteID == route.RouteID {
		opID, err := s.appendNoopLog(ctx, row, actorID, actorLabel)
		if err != nil {
			return "", err
		}
		return opID, errNoop
	}

	var changes []models.ChangeRecord
	changes = appendChange(changes, "buses", vehicle.BusID, *vehicle)

	routeID := route.RouteID
	routeName := route.Name
	vehicle.RouteID = &routeID
	vehicle.RouteName = &routeName

	setAfter(changes, "buses", vehicle.BusID, *vehicle)

	summary := fmt.Sprintf("Moved %s to route %s (%s)", row.BusLabel, route.RouteID, route.Name)
	entry, err := s.newLogEntry(row, actorID, actorLabel, changes, summary)
	if err != nil {
		return "", err
	}

	err = s.store.Transact(ctx, func(tx store.EntityStore) error {
		if err := tx.SaveVehicle(ctx, vehicle); err != nil {
			return err
		}
		return tx.AppendLog(ctx, entry)
	})
	if err != nil {
		return "", err
	}
	return entry.OperationID, nil
}

// Rollback compensates a committed operation: every change record's
// "before" snapshot is re-applied to durable storage and a new log entry
// of type rollback is appended referencing the original. The original
// entry is never edited. Rolling back a rollback is rejected.
func (s *CommitService) Rollback(ctx context.Context, operationID, actorID, actorLabel string) (*RollbackResult, error) {
	entry, err := s.store.GetLog(ctx, operationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &RollbackError{OperationID: operationID, Reason: "operation not found"}
		}
		return nil, err
	}
	if entry.Type == models.LogTypeRollback {
		return nil, &RollbackError{OperationID: operationID, Reason: "operation is itself a rollback"}
	}
	if entry.Status != models.LogStatusCommitted {
		return nil, &RollbackError{OperationID: operationID, Reason: fmt.Sprintf("operation status is %q, not committed", entry.Status)}
	}
	if _, err := s.store.FindRollbackOf(ctx, operationID); err == nil {
		return nil, &RollbackError{OperationID: operationID, Reason: "operation was already rolled back"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	records, err := entry.ChangeRecords()
	if err != nil {
		return nil, fmt.Errorf("decoding change records: %w", err)
	}
	if len(records) == 0 {
		return nil, &RollbackError{OperationID: operationID, Reason: "operation has no change records"}
	}

	// The rollback's own audit trail runs the original records in reverse.
	inverted := make([]models.ChangeRecord, len(records))
	for i, rec := range records {
		inverted[i] = models.ChangeRecord{
			Collection: rec.Collection,
			DocumentID: rec.DocumentID,
			Before:     rec.After,
			After:      rec.Before,
		}
	}

	rollbackEntry := &models.ReassignmentLog{
		OperationID: uuid.NewString(),
		Type:        models.LogTypeRollback,
		ActorID:     actorID,
		ActorLabel:  actorLabel,
		Timestamp:   time.Now().UTC(),
		Status:      models.LogStatusCommitted,
		Summary:     fmt.Sprintf("Rolled back: %s", entry.Summary),
		RollbackOf:  &entry.OperationID,
	}
	if err := rollbackEntry.SetChangeRecords(inverted); err != nil {
		return nil, err
	}

	err = s.store.Transact(ctx, func(tx store.EntityStore) error {
		for _, rec := range records {
			if err := restoreSnapshot(ctx, tx, rec); err != nil {
				return err
			}
		}
		return tx.AppendLog(ctx, rollbackEntry)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"actor":       actorID,
		"rollback_of": operationID,
		"operation":   rollbackEntry.OperationID,
	}).Info("operation rolled back")

	return &RollbackResult{
		OperationID:   rollbackEntry.OperationID,
		RollbackOf:    operationID,
		RestoredCount: len(records),
		Summary:       rollbackEntry.Summary,
	}, nil
}

// ListLogs returns audit entries newest first, optionally filtered by type.
func (s *CommitService) ListLogs(ctx context.Context, typeFilter string, limit int) ([]models.ReassignmentLog, error) {
	return s.store.ListLogs(ctx, typeFilter, limit)
}

func restoreSnapshot(ctx context.Context, tx store.EntityStore, rec models.ChangeRecord) error {
	if len(rec.Before) == 0 {
		return fmt.Errorf("change record for %s/%s has no before snapshot", rec.Collection, rec.DocumentID)
	}
	switch rec.Collection {
	case "drivers":
		var d models.Driver
		if err := json.Unmarshal(rec.Before, &d); err != nil {
			return err
		}
		return tx.SaveDriver(ctx, &d)
	case "buses":
		var v models.Vehicle
		if err := json.Unmarshal(rec.Before, &v); err != nil {
			return err
		}
		return tx.SaveVehicle(ctx, &v)
	case "routes":
		var r models.Route
		if err := json.Unmarshal(rec.Before, &r); err != nil {
			return err
		}
		return tx.SaveRoute(ctx, &r)
	default:
		return fmt.Errorf("unknown collection %q in change record", rec.Collection)
	}
}

func (s *CommitService) newLogEntry(row staging.StagingRow, actorID, actorLabel string, changes []models.ChangeRecord, summary string) (*models.ReassignmentLog, error) {
	metadata, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	entry := &models.ReassignmentLog{
		OperationID: uuid.NewString(),
		Type:        logType(row),
		ActorID:     actorID,
		ActorLabel:  actorLabel,
		Timestamp:   time.Now().UTC(),
		Status:      models.LogStatusCommitted,
		Summary:     summary,
		Metadata:    metadata,
	}
	if err := entry.SetChangeRecords(changes); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *CommitService) appendNoopLog(ctx context.Context, row staging.StagingRow, actorID, actorLabel string) (string, error) {
	metadata, _ := json.Marshal(row)
	entry := &models.ReassignmentLog{
		OperationID: uuid.NewString(),
		Type:        logType(row),
		ActorID:     actorID,
		ActorLabel:  actorLabel,
		Timestamp:   time.Now().UTC(),
		Status:      models.LogStatusNoop,
		Summary:     fmt.Sprintf("No change needed on %s", row.Label()),
		Metadata:    metadata,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return "", err
	}
	return entry.OperationID, nil
}

// logFailure records a failed row best-effort; a failure to log must not
// mask the commit error itself.
func (s *CommitService) logFailure(ctx context.Context, row staging.StagingRow, actorID, actorLabel string, cause error) {
	metadata, _ := json.Marshal(row)
	entry := &models.ReassignmentLog{
		OperationID: uuid.NewString(),
		Type:        logType(row),
		ActorID:     actorID,
		ActorLabel:  actorLabel,
		Timestamp:   time.Now().UTC(),
		Status:      models.LogStatusFailed,
		Summary:     fmt.Sprintf("Failed on %s: %v", row.Label(), cause),
		Metadata:    metadata,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		logrus.WithError(err).Warn("could not append failure log entry")
	}
}

func logType(row staging.StagingRow) string {
	switch r := row.(type) {
	case *staging.DriverRow:
		switch r.ChangeType {
		case staging.ChangeSwap:
			return models.LogTypeSwap
		case staging.ChangeReserve:
			return models.LogTypeReserve
		default:
			return models.LogTypeAssign
		}
	case *staging.RouteRow:
		return models.LogTypeRouteChange
	default:
		return "unknown"
	}
}

func driverRowSummary(row *staging.DriverRow, incoming, displaced *models.Driver) string {
	switch {
	case row.IsSwap && displaced != nil:
		return fmt.Sprintf("Swapped %s (%s) with %s (%s) on %s",
			displaced.Name, displaced.EmployeeID, incoming.Name, incoming.EmployeeID, row.BusLabel)
	case displaced != nil:
		return fmt.Sprintf("Assigned %s (%s) to %s; %s (%s) moved to reserve",
			incoming.Name, incoming.EmployeeID, row.BusLabel, displaced.Name, displaced.EmployeeID)
	default:
		return fmt.Sprintf("Assigned %s (%s) to %s", incoming.Name, incoming.EmployeeID, row.BusLabel)
	}
}

func appendChange(changes []models.ChangeRecord, collection, id string, before interface{}) []models.ChangeRecord {
	raw, _ := json.Marshal(before)
	return append(changes, models.ChangeRecord{Collection: collection, DocumentID: id, Before: raw})
}

func setAfter(changes []models.ChangeRecord, collection, id string, after interface{}) {
	for i := range changes {
		if changes[i].Collection == collection && changes[i].DocumentID == id {
			raw, _ := json.Marshal(after)
			changes[i].After = raw
			return
		}
	}
}
