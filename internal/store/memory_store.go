package store

import (
	"context"
	"sort"
	"sync"

	"fleet_ops/internal/models"
)

// MemoryStore is an in-process EntityStore. It backs engine tests and
// doubles as the storage layer for demo runs without postgres.
//
// FailWrite, when set, is consulted before every entity write; returning a
// non-nil error makes that write fail, which is how tests exercise the
// per-row failure paths of the commit service.
type MemoryStore struct {
	mu       sync.RWMutex
	drivers  map[string]models.Driver
	vehicles map[string]models.Vehicle
	routes   map[string]models.Route
	logs     []models.ReassignmentLog

	FailWrite func(collection, id string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:  make(map[string]models.Driver),
		vehicles: make(map[string]models.Vehicle),
		routes:   make(map[string]models.Route),
	}
}

// Seed loads initial fleet state, bypassing the failure hook.
func (s *MemoryStore) Seed(drivers []models.Driver, vehicles []models.Vehicle, routes []models.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range drivers {
		s.drivers[d.UID] = d
	}
	for _, v := range vehicles {
		s.vehicles[v.BusID] = v
	}
	for _, r := range routes {
		s.routes[r.RouteID] = r
	}
}

func (s *MemoryStore) LoadFleet(ctx context.Context) ([]models.Driver, []models.Vehicle, []models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drivers := make([]models.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		drivers = append(drivers, d)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].UID < drivers[j].UID })
	vehicles := make([]models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].BusID < vehicles[j].BusID })
	routes := make([]models.Route, 0, len(s.routes))
	for _, r := range s.routes {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })
	return drivers, vehicles, routes, nil
}

func (s *MemoryStore) GetDriver(ctx context.Context, uid string) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) GetVehicle(ctx context.Context, busID string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[busID]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryStore) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[routeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) SaveDriver(ctx context.Context, d *models.Driver) error {
	if err := s.failWrite("drivers", d.UID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[d.UID] = *d
	return nil
}

func (s *MemoryStore) SaveVehicle(ctx context.Context, v *models.Vehicle) error {
	if err := s.failWrite("buses", v.BusID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.BusID] = *v
	return nil
}

func (s *MemoryStore) SaveRoute(ctx context.Context, r *models.Route) error {
	if err := s.failWrite("routes", r.RouteID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[r.RouteID] = *r
	return nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, entry *models.ReassignmentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.logs {
		if existing.OperationID == entry.OperationID {
			return ErrDuplicate
		}
	}
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *MemoryStore) GetLog(ctx context.Context, operationID string) (*models.ReassignmentLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.logs {
		if entry.OperationID == operationID {
			cp := entry
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListLogs(ctx context.Context, typeFilter string, limit int) ([]models.ReassignmentLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReassignmentLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if typeFilter != "" && s.logs[i].Type != typeFilter {
			continue
		}
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) FindRollbackOf(ctx context.Context, operationID string) (*models.ReassignmentLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.logs {
		if entry.RollbackOf != nil && *entry.RollbackOf == operationID {
			cp := entry
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Transact buffers writes against a copy of the store and swaps the copy
// in only when fn succeeds, mirroring the all-or-nothing scope the gorm
// store gets from a database transaction.
func (s *MemoryStore) Transact(ctx context.Context, fn func(EntityStore) error) error {
	s.mu.Lock()
	shadow := &MemoryStore{
		drivers:   cloneDrivers(s.drivers),
		vehicles:  cloneVehicles(s.vehicles),
		routes:    cloneRoutes(s.routes),
		logs:      append([]models.ReassignmentLog(nil), s.logs...),
		FailWrite: s.FailWrite,
	}
	s.mu.Unlock()

	if err := fn(shadow); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers = shadow.drivers
	s.vehicles = shadow.vehicles
	s.routes = shadow.routes
	s.logs = shadow.logs
	return nil
}

func (s *MemoryStore) failWrite(collection, id string) error {
	if s.FailWrite != nil {
		return s.FailWrite(collection, id)
	}
	return nil
}

func cloneDrivers(in map[string]models.Driver) map[string]models.Driver {
	out := make(map[string]models.Driver, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneVehicles(in map[string]models.Vehicle) map[string]models.Vehicle {
	out := make(map[string]models.Vehicle, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneRoutes(in map[string]models.Route) map[string]models.Route {
	out := make(map[string]models.Route, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
