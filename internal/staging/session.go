package staging

import (
	"fmt"
	"sync"
	"time"

	logrus "github.com/sirupsen/logrus"

	"fleet_ops/internal/models"
)

// Session is the single-owner editing session around one WorkingCopy. It
// gates rows through the validator, keeps the mutator and row list in
// step, and runs the confirmation countdown that discards an unconfirmed
// batch. All methods are safe for the session owner's goroutines; a
// session is never shared between admins.
type Session struct {
	mu       sync.Mutex
	wc       *WorkingCopy
	actorID  string
	window   time.Duration
	timer    *CountdownTimer
	timerGen uint64
	expired  bool
}

// NewSession wraps a freshly built working copy. A zero window disables
// the confirmation countdown.
func NewSession(wc *WorkingCopy, actorID string, window time.Duration) *Session {
	return &Session{wc: wc, actorID: actorID, window: window}
}

// ActorID returns the admin who owns this session.
func (s *Session) ActorID() string {
	return s.actorID
}

// Stage validates the row and, on success, applies it to the working copy.
// A pending row of the same kind on the same vehicle is replaced, not
// stacked. Staging (re)starts the confirmation countdown.
func (s *Session) Stage(row StagingRow) *ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if verr := Validate(row, s.wc); verr != nil {
		logrus.WithFields(logrus.Fields{
			"actor": s.actorID,
			"bus":   row.TargetBus(),
			"code":  verr.Code,
		}).Warn("staging row rejected")
		return verr
	}

	if existing := s.wc.RowForVehicle(row.TargetBus(), row.Kind()); existing != nil {
		if err := Revert(existing.RowID(), s.wc); err != nil {
			return internalError(row, err)
		}
		// The incoming row was built against the merged view, so its
		// snapshots describe the row just reverted. Recapture them from
		// the post-revert state or the replacement would dangle the live
		// driver and poison the commit's conflict guard.
		refreshRow(row, s.wc)
	}

	if err := Apply(row, s.wc); err != nil {
		return internalError(row, err)
	}
	s.wc.appendRow(row)
	s.restartCountdownLocked()

	logrus.WithFields(logrus.Fields{
		"actor": s.actorID,
		"bus":   row.TargetBus(),
		"kind":  row.Kind(),
	}).Debug("staging row accepted")
	return nil
}

// internalError wraps a mutator failure for the API surface. These are
// working-copy consistency failures, not input problems, so they carry
// their own code.
func internalError(row StagingRow, err error) *ValidationError {
	return &ValidationError{
		RowID:   row.RowID(),
		BusID:   row.TargetBus(),
		Code:    ErrInternal,
		Message: err.Error(),
	}
}

// Unstage reverts one pending row by id.
func (s *Session) Unstage(rowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Revert(rowID, s.wc); err != nil {
		return err
	}
	if len(s.wc.rows) == 0 {
		s.cancelCountdownLocked()
	}
	return nil
}

// ClearAll cancels the countdown and restores the working copy to the
// original snapshot.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCountdownLocked()
	ClearAll(s.wc)
}

// Confirm cancels the countdown and hands back the pending batch in
// staging order for the commit service. The session should be discarded
// after a successful commit and rebuilt from a fresh load.
func (s *Session) Confirm() ([]StagingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return nil, fmt.Errorf("session expired: staged batch was discarded by the confirmation window")
	}
	s.cancelCountdownLocked()
	rows := s.wc.Rows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("nothing staged")
	}
	return rows, nil
}

// Expired reports whether the confirmation window discarded the batch.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Rows returns the pending batch in staging order.
func (s *Session) Rows() []StagingRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wc.Rows()
}

// The three merged-view queries, delegated to the working copy.

func (s *Session) ResolveDriverForVehicle(busID string) (*models.Driver, Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wc.DriverForVehicle(busID)
}

func (s *Session) ResolveVehicleForDriver(uid string) (*models.Vehicle, Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wc.VehicleForDriver(uid)
}

func (s *Session) ResolveRouteForVehicle(busID string) (*RouteView, Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wc.RouteForVehicle(busID)
}

// WorkingCopy exposes the underlying copy for read-side rendering.
func (s *Session) WorkingCopy() *WorkingCopy {
	return s.wc
}

// restartCountdownLocked replaces any running countdown with a fresh one.
// Caller holds s.mu.
func (s *Session) restartCountdownLocked() {
	if s.window <= 0 {
		return
	}
	s.cancelCountdownLocked()
	gen := s.timerGen
	s.timer = NewCountdownTimer(s.window, func() { s.autoRevert(gen) })
}

// cancelCountdownLocked stops the countdown and bumps the generation so a
// callback that already fired and is waiting on s.mu becomes a no-op.
// Caller holds s.mu.
func (s *Session) cancelCountdownLocked() {
	s.timer.Cancel()
	s.timerGen++
}

// autoRevert fires when the confirmation window elapses: the staged,
// never-committed batch is discarded in full. A callback from a superseded
// countdown carries a stale generation and does nothing.
func (s *Session) autoRevert(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen {
		return
	}
	if len(s.wc.rows) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"actor": s.actorID,
		"rows":  len(s.wc.rows),
	}).Info("confirmation window elapsed, discarding staged batch")
	ClearAll(s.wc)
	s.expired = true
}
