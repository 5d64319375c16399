package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	logrus "github.com/sirupsen/logrus"

	"fleet_ops/internal/services"
	"fleet_ops/internal/staging"
	"fleet_ops/internal/store"
)

// ConfirmationWindow is how long a staged batch survives without explicit
// confirmation before it is discarded automatically.
const ConfirmationWindow = 120 * time.Second

var (
	entityStore store.EntityStore
	commitSvc   *services.CommitService

	sessionsMu sync.Mutex
	sessions   = map[string]*staging.Session{}
)

// InitAssignmentEngine wires the durable store into the assignment
// handlers. Called once from main after the database is up.
func InitAssignmentEngine(st store.EntityStore) {
	entityStore = st
	commitSvc = services.NewCommitService(st)
}

func actorFromContext(c *gin.Context) (id string, label string) {
	if v, ok := c.Get("user_id"); ok {
		if f, ok := v.(float64); ok {
			id = strconv.FormatUint(uint64(f), 10)
		}
	}
	if v, ok := c.Get("name"); ok {
		if s, ok := v.(string); ok {
			label = s
		}
	}
	return id, label
}

func activeSession(c *gin.Context) *staging.Session {
	actorID, _ := actorFromContext(c)
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	sess := sessions[actorID]
	if sess != nil && sess.Expired() {
		// The confirmation window already discarded the batch; drop the
		// stale session so the admin reloads fresh state.
		delete(sessions, actorID)
		return nil
	}
	return sess
}

func dropSession(actorID string) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	delete(sessions, actorID)
}

// OpenSession builds a fresh working copy from durable state and starts an
// editing session for the calling admin. An existing session for the same
// admin is discarded first.
func OpenSession(c *gin.Context) {
	actorID, actorLabel := actorFromContext(c)

	drivers, vehicles, routes, err := entityStore.LoadFleet(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("OpenSession: could not load fleet")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load fleet state."})
		return
	}

	wc := staging.NewWorkingCopy(drivers, vehicles, routes)
	sess := staging.NewSession(wc, actorID, ConfirmationWindow)

	sessionsMu.Lock()
	if old := sessions[actorID]; old != nil {
		old.ClearAll()
	}
	sessions[actorID] = sess
	sessionsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"actor":    actorLabel,
		"drivers":  len(drivers),
		"vehicles": len(vehicles),
		"routes":   len(routes),
	}).Info("assignment session opened")

	c.JSON(http.StatusCreated, gin.H{
		"drivers":        drivers,
		"vehicles":       vehicles,
		"routes":         routes,
		"window_seconds": int(ConfirmationWindow.Seconds()),
	})
}

// GetSession returns the pending batch.
func GetSession(c *gin.Context) {
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session. Open one first."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": sess.Rows()})
}

// stageInput describes one requested reassignment. Kind selects the row
// shape; the engine looks the referenced entities up in the session's
// working copy and builds the row itself.
type stageInput struct {
	Kind        string `json:"kind" binding:"required"` // "assign", "swap", "reserve", "route"
	BusID       string `json:"bus_id" binding:"required"`
	DriverUID   string `json:"driver_uid"`   // incoming driver for driver rows
	IncomingUID string `json:"incoming_uid"` // explicit swap: driver taking the bus
	RouteID     string `json:"route_id"`     // route rows
}

// StageRow validates and stages one reassignment on the session.
func StageRow(c *gin.Context) {
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session. Open one first."})
		return
	}
	var input stageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	row, err := buildRow(sess, input, sess.ActorID())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if verr := sess.Stage(row); verr != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "validation": verr})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"row": row})
}

// buildRow turns a stage request into a fully-formed staging row using the
// session's merged view to find the displaced operator.
func buildRow(sess *staging.Session, input stageInput, actor string) (staging.StagingRow, error) {
	wc := sess.WorkingCopy()
	vehicle, ok := wc.Vehicles[input.BusID]
	if !ok {
		return nil, fmt.Errorf("vehicle %s does not exist", input.BusID)
	}

	switch input.Kind {
	case "assign", "reserve":
		driver, ok := wc.Drivers[input.DriverUID]
		if !ok {
			return nil, fmt.Errorf("driver %s does not exist", input.DriverUID)
		}
		current, _ := wc.DriverForVehicle(input.BusID)
		if input.Kind == "reserve" {
			return staging.NewReserveRow(vehicle, current, driver, actor), nil
		}
		return staging.NewAssignRow(vehicle, driver, current, actor), nil
	case "swap":
		current, _ := wc.DriverForVehicle(input.BusID)
		if current == nil {
			return nil, fmt.Errorf("vehicle %s has no driver to swap", input.BusID)
		}
		incoming, ok := wc.Drivers[input.IncomingUID]
		if !ok {
			return nil, fmt.Errorf("driver %s does not exist", input.IncomingUID)
		}
		return staging.NewSwapRow(vehicle, current, incoming, actor), nil
	case "route":
		route, ok := wc.Routes[input.RouteID]
		if !ok {
			return nil, fmt.Errorf("route %s does not exist", input.RouteID)
		}
		return staging.NewRouteRow(vehicle, vehicle.RouteID, vehicle.RouteName, route, actor), nil
	default:
		return nil, fmt.Errorf("unknown row kind %q", input.Kind)
	}
}

// UnstageRow reverts one pending row.
func UnstageRow(c *gin.Context) {
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session. Open one first."})
		return
	}
	if err := sess.Unstage(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Row reverted.", "rows": sess.Rows()})
}

// CancelSession discards the staged batch and the session.
func CancelSession(c *gin.Context) {
	actorID, _ := actorFromContext(c)
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session."})
		return
	}
	sess.ClearAll()
	dropSession(actorID)
	c.JSON(http.StatusOK, gin.H{"message": "Session cancelled, staged changes discarded."})
}

// ConfirmSession commits the staged batch. The session is discarded
// afterwards regardless of per-row outcomes; failed rows come back in the
// result for the client to restage against a fresh session.
func ConfirmSession(c *gin.Context) {
	actorID, actorLabel := actorFromContext(c)
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session."})
		return
	}

	rows, err := sess.Confirm()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	result := commitSvc.Commit(c.Request.Context(), rows, actorID, actorLabel)
	dropSession(actorID)

	status := http.StatusOK
	if result.FailureCount > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"result": result})
}

// ResolveDriverForVehicle answers "who drives this bus" under the merged
// (staged-over-live) view.
func ResolveDriverForVehicle(c *gin.Context) {
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session. Open one first."})
		return
	}
	driver, source := sess.ResolveDriverForVehicle(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"driver": driver, "source": source})
}

// ResolveVehicleForDriver answers "which bus does this driver hold".
func ResolveVehicleForDriver(c *gin.Context) {
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session. Open one first."})
		return
	}
	vehicle, source := sess.ResolveVehicleForDriver(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"vehicle": vehicle, "source": source})
}

// ResolveRouteForVehicle answers "what route does this bus run".
func ResolveRouteForVehicle(c *gin.Context) {
	sess := activeSession(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session. Open one first."})
		return
	}
	route, source := sess.ResolveRouteForVehicle(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"route": route, "source": source})
}

// ListReassignmentLogs returns audit entries, newest first.
func ListReassignmentLogs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit."})
			return
		}
		limit = n
	}
	entries, err := commitSvc.ListLogs(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		logrus.WithError(err).Error("ListReassignmentLogs: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list logs."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// RollbackOperation compensates a committed operation by id.
func RollbackOperation(c *gin.Context) {
	actorID, actorLabel := actorFromContext(c)
	result, err := commitSvc.Rollback(c.Request.Context(), c.Param("id"), actorID, actorLabel)
	if err != nil {
		var rbErr *services.RollbackError
		if errors.As(err, &rbErr) {
			c.JSON(http.StatusConflict, gin.H{"error": rbErr.Error()})
			return
		}
		logrus.WithError(err).Error("RollbackOperation: rollback failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rollback failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
