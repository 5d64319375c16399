// internal/models/reassignment_log.go
package models

import (
	"encoding/json"
	"time"
)

// Log entry statuses. Entries are append-only; a rollback never edits the
// original entry, it appends a new one with RollbackOf set.
const (
	LogStatusPending    = "pending"
	LogStatusCommitted  = "committed"
	LogStatusRolledBack = "rolled_back"
	LogStatusFailed     = "failed"
	LogStatusNoop       = "no-op"
)

// Log entry types, one per kind of durable operation.
const (
	LogTypeAssign      = "assign"
	LogTypeSwap        = "swap"
	LogTypeReserve     = "reserve"
	LogTypeRouteChange = "route_change"
	LogTypeRollback    = "rollback"
)

// ChangeRecord captures one document touched by an operation, with full
// before/after snapshots so the operation can be compensated later.
type ChangeRecord struct {
	Collection string          `json:"collection"`  // "drivers", "buses", "routes"
	DocumentID string          `json:"document_id"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
}

// ReassignmentLog is the append-only audit record written at commit time.
// Changes holds the ordered ChangeRecord list as JSON; Metadata carries the
// full staged row for replay and inspection.
type ReassignmentLog struct {
	OperationID string    `json:"operation_id" gorm:"primaryKey;column:operation_id"`
	Type        string    `json:"type" gorm:"index"`
	ActorID     string    `json:"actor_id" gorm:"index"`
	ActorLabel  string    `json:"actor_label"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	Changes     []byte    `json:"changes" gorm:"type:jsonb"`
	Metadata    []byte    `json:"metadata" gorm:"type:jsonb"`
	RollbackOf  *string   `json:"rollback_of" gorm:"index"`
}

// TableName keeps the legacy collection name.
func (ReassignmentLog) TableName() string {
	return "reassignment_logs"
}

// ChangeRecords decodes the stored change list.
func (l *ReassignmentLog) ChangeRecords() ([]ChangeRecord, error) {
	if len(l.Changes) == 0 {
		return nil, nil
	}
	var records []ChangeRecord
	if err := json.Unmarshal(l.Changes, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SetChangeRecords encodes and stores the change list.
func (l *ReassignmentLog) SetChangeRecords(records []ChangeRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	l.Changes = raw
	return nil
}
