package store

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"fleet_ops/internal/models"
)

// GormStore is the postgres-backed EntityStore.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) LoadFleet(ctx context.Context) ([]models.Driver, []models.Vehicle, []models.Route, error) {
	var drivers []models.Driver
	if err := s.db.WithContext(ctx).Order("uid").Find(&drivers).Error; err != nil {
		return nil, nil, nil, err
	}
	var vehicles []models.Vehicle
	if err := s.db.WithContext(ctx).Order("bus_id").Find(&vehicles).Error; err != nil {
		return nil, nil, nil, err
	}
	var routes []models.Route
	if err := s.db.WithContext(ctx).Preload("Stops").Order("route_id").Find(&routes).Error; err != nil {
		return nil, nil, nil, err
	}
	return drivers, vehicles, routes, nil
}

func (s *GormStore) GetDriver(ctx context.Context, uid string) (*models.Driver, error) {
	var d models.Driver
	if err := s.db.WithContext(ctx).First(&d, "uid = ?", uid).Error; err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (s *GormStore) GetVehicle(ctx context.Context, busID string) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := s.db.WithContext(ctx).First(&v, "bus_id = ?", busID).Error; err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

func (s *GormStore) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	var r models.Route
	if err := s.db.WithContext(ctx).Preload("Stops").First(&r, "route_id = ?", routeID).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *GormStore) SaveDriver(ctx context.Context, d *models.Driver) error {
	return mapErr(s.db.WithContext(ctx).Save(d).Error)
}

func (s *GormStore) SaveVehicle(ctx context.Context, v *models.Vehicle) error {
	return mapErr(s.db.WithContext(ctx).Save(v).Error)
}

func (s *GormStore) SaveRoute(ctx context.Context, r *models.Route) error {
	return mapErr(s.db.WithContext(ctx).Save(r).Error)
}

func (s *GormStore) AppendLog(ctx context.Context, entry *models.ReassignmentLog) error {
	return mapErr(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) GetLog(ctx context.Context, operationID string) (*models.ReassignmentLog, error) {
	var entry models.ReassignmentLog
	if err := s.db.WithContext(ctx).First(&entry, "operation_id = ?", operationID).Error; err != nil {
		return nil, mapErr(err)
	}
	return &entry, nil
}

func (s *GormStore) ListLogs(ctx context.Context, typeFilter string, limit int) ([]models.ReassignmentLog, error) {
	q := s.db.WithContext(ctx).Order("timestamp DESC")
	if typeFilter != "" {
		q = q.Where("type = ?", typeFilter)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.ReassignmentLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) FindRollbackOf(ctx context.Context, operationID string) (*models.ReassignmentLog, error) {
	var entry models.ReassignmentLog
	if err := s.db.WithContext(ctx).First(&entry, "rollback_of = ?", operationID).Error; err != nil {
		return nil, mapErr(err)
	}
	return &entry, nil
}

func (s *GormStore) Transact(ctx context.Context, fn func(EntityStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// mapErr folds driver errors into the store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
