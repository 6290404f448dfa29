package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

// Clock hands out store timestamps. It never goes backwards, so readings appended one after
// another keep a non-decreasing timestamp order even if the wall clock steps back.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	Now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{Now: func() time.Time { return time.Now().UTC() }}
}

func (c *Clock) Tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

type SqlStore struct {
	db    *DB
	clock *Clock
}

func NewSqlStore(db *DB) *SqlStore {
	return &SqlStore{db: db, clock: NewClock()}
}

func (s *SqlStore) WithClock(clock *Clock) *SqlStore {
	s.clock = clock
	return s
}

func (s *SqlStore) DB() *DB {
	return s.db
}

func (s *SqlStore) AppendReading(ctx context.Context, deviceID string, probability float64) (*models.Reading, error) {
	reading := models.Reading{
		DeviceID:    deviceID,
		Timestamp:   s.clock.Tick(),
		Probability: probability,
	}
	if err := s.db.Conn.WithContext(ctx).Create(&reading).Error; err != nil {
		return nil, fmt.Errorf("append reading: %w", err)
	}
	return &reading, nil
}

func (s *SqlStore) upsertDevice(ctx context.Context, device *models.Device, columns ...string) error {
	return s.db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(device).Error
}

func (s *SqlStore) SetLatestProbability(ctx context.Context, deviceID string, probability float64) error {
	err := s.upsertDevice(ctx, &models.Device{ID: deviceID, LatestProbability: probability}, "latest_probability")
	if err != nil {
		return fmt.Errorf("set latest probability: %w", err)
	}
	return nil
}

func (s *SqlStore) SetDeliveryToken(ctx context.Context, deviceID string, token string) error {
	err := s.upsertDevice(ctx, &models.Device{ID: deviceID, FCMToken: token}, "fcm_token")
	if err != nil {
		return fmt.Errorf("set delivery token: %w", err)
	}
	return nil
}

func (s *SqlStore) AppendAlert(ctx context.Context, deviceID string, alert *models.Alert) error {
	alert.ID = uuid.NewString()
	alert.DeviceID = deviceID
	if alert.AlertTime.IsZero() {
		alert.AlertTime = s.clock.Tick()
	}
	if err := s.db.Conn.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

func (s *SqlStore) AcknowledgeAlert(ctx context.Context, deviceID string, alertID string) error {
	conn := s.db.Conn.WithContext(ctx)

	var alert models.Alert
	err := conn.Where("id = ? AND device_id = ?", alertID, deviceID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFound("alert %s of device %s", alertID, deviceID)
	}
	if err != nil {
		return fmt.Errorf("load alert: %w", err)
	}

	if err := conn.Model(&alert).Update("acknowledged", true).Error; err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	return nil
}

func (s *SqlStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	err := s.db.Conn.WithContext(ctx).First(&device, "id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("device %s", deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &device, nil
}

func (s *SqlStore) RecentReadings(ctx context.Context, deviceID string, count int) ([]models.Reading, error) {
	readings := []models.Reading{}
	err := s.db.Conn.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc").
		Order("id desc").
		Limit(count).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	return readings, nil
}

func (s *SqlStore) AlertHistory(ctx context.Context, deviceID string, limit int) ([]models.Alert, error) {
	alerts := []models.Alert{}
	err := s.db.Conn.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("alert_time desc").
		Order("rowid desc").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("alert history: %w", err)
	}
	return alerts, nil
}

func (s *SqlStore) Subscribe(ctx context.Context) <-chan models.AlertCreated {
	return s.db.Changes.Subscribe(ctx)
}

func (s *SqlStore) Close() error {
	return s.db.Close()
}
