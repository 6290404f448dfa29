package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
	_ "liyu1981.xyz/seizure-alert-service/pkg/testing"
)

func tableExists(db *gorm.DB, tableName string) bool {
	var count int64
	err := db.Raw(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, tableName,
	).Scan(&count).Error
	return err == nil && count > 0
}

func newTestStore(t *testing.T) *SqlStore {
	instance, err := Open(UseIsolatedMemorySqliteDialector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = instance.Close() })
	return NewSqlStore(instance)
}

func TestWithMemorySqlite(t *testing.T) {
	common.SetTestLoggerNop()

	instance, err := Open(UseMemorySqliteDialector())
	require.NoError(t, err)
	defer instance.Close()

	var tables = []string{"devices", "readings", "alerts"}
	for _, table := range tables {
		if !tableExists(instance.Conn, table) {
			t.Errorf("Expected table %q to exist after migration", table)
		}
	}
}

func TestWithEnvPath(t *testing.T) {
	common.SetTestLoggerNop()

	testPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv(common.EnvKeyIOTDbPath, testPath)

	instance, err := Open(UseSqliteDialector())
	require.NoError(t, err)
	defer instance.Close()

	if _, err := os.Stat(testPath); os.IsNotExist(err) {
		t.Errorf("Expected database file to be created at %s", testPath)
	}
}

func TestClockNeverGoesBackwards(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}

	clock := NewClock()
	i := 0
	clock.Now = func() time.Time {
		now := ticks[i]
		i++
		return now
	}

	assert.Equal(t, base, clock.Tick())
	assert.Equal(t, base, clock.Tick())
	assert.Equal(t, base.Add(time.Second), clock.Tick())
}

func TestMergeUpsertKeepsOtherFields(t *testing.T) {
	common.SetTestLoggerNop()

	store := newTestStore(t)
	ctx := context.Background()
	deviceID := uuid.NewString()

	_, err := store.GetDevice(ctx, deviceID)
	assert.True(t, common.IsNotFound(err))

	require.NoError(t, store.SetDeliveryToken(ctx, deviceID, "tok1"))
	device, err := store.GetDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, "tok1", device.FCMToken)
	assert.Equal(t, 0.0, device.LatestProbability)

	require.NoError(t, store.SetLatestProbability(ctx, deviceID, 0.42))
	device, err = store.GetDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, "tok1", device.FCMToken)
	assert.Equal(t, 0.42, device.LatestProbability)

	require.NoError(t, store.SetDeliveryToken(ctx, deviceID, "tok2"))
	device, err = store.GetDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, "tok2", device.FCMToken)
	assert.Equal(t, 0.42, device.LatestProbability)
}

func TestRecentReadingsOrderAndLimit(t *testing.T) {
	common.SetTestLoggerNop()

	store := newTestStore(t)
	ctx := context.Background()
	deviceID := uuid.NewString()

	for _, p := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		_, err := store.AppendReading(ctx, deviceID, p)
		require.NoError(t, err)
	}

	readings, err := store.RecentReadings(ctx, deviceID, 2)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 0.5, readings[0].Probability)
	assert.Equal(t, 0.4, readings[1].Probability)
	assert.False(t, readings[0].Timestamp.Before(readings[1].Timestamp))

	readings, err = store.RecentReadings(ctx, deviceID, -1)
	require.NoError(t, err)
	assert.Len(t, readings, 5)

	readings, err = store.RecentReadings(ctx, deviceID, 0)
	require.NoError(t, err)
	assert.Len(t, readings, 0)

	readings, err = store.RecentReadings(ctx, uuid.NewString(), 20)
	require.NoError(t, err)
	assert.NotNil(t, readings)
	assert.Len(t, readings, 0)
}

func TestAlertsAndAcknowledge(t *testing.T) {
	common.SetTestLoggerNop()

	store := newTestStore(t)
	ctx := context.Background()
	deviceID := uuid.NewString()

	first := &models.Alert{Probability: 0.3, AlertMessage: models.SeverityLow}
	second := &models.Alert{Probability: 0.9, AlertMessage: models.SeverityHigh}
	require.NoError(t, store.AppendAlert(ctx, deviceID, first))
	require.NoError(t, store.AppendAlert(ctx, deviceID, second))
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	alerts, err := store.AlertHistory(ctx, deviceID, 50)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, second.ID, alerts[0].ID)
	assert.Equal(t, first.ID, alerts[1].ID)
	assert.False(t, alerts[0].Acknowledged)

	require.NoError(t, store.AcknowledgeAlert(ctx, deviceID, second.ID))
	// acknowledging twice is a no-op
	require.NoError(t, store.AcknowledgeAlert(ctx, deviceID, second.ID))

	alerts, err = store.AlertHistory(ctx, deviceID, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)

	err = store.AcknowledgeAlert(ctx, deviceID, uuid.NewString())
	assert.True(t, common.IsNotFound(err))

	// the alert exists, but under another device
	err = store.AcknowledgeAlert(ctx, uuid.NewString(), first.ID)
	assert.True(t, common.IsNotFound(err))
}

func TestAlertCreatedChangeFeed(t *testing.T) {
	common.SetTestLoggerNop()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := store.Subscribe(ctx)
	deviceID := uuid.NewString()

	alert := &models.Alert{Probability: 0.95, AlertMessage: models.SeverityHigh}
	require.NoError(t, store.AppendAlert(context.Background(), deviceID, alert))

	// readings and devices are not part of the feed
	_, err := store.AppendReading(context.Background(), deviceID, 0.95)
	require.NoError(t, err)
	require.NoError(t, store.SetLatestProbability(context.Background(), deviceID, 0.95))

	select {
	case event := <-events:
		assert.Equal(t, deviceID, event.DeviceID)
		assert.Equal(t, alert.ID, event.AlertID)
		assert.Equal(t, 0.95, event.Alert.Probability)
		assert.Equal(t, models.SeverityHigh, event.Alert.AlertMessage)
	case <-time.After(time.Second):
		t.Fatal("expected an alert created event")
	}

	select {
	case event := <-events:
		t.Fatalf("unexpected event %+v", event)
	default:
	}

	cancel()
	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("expected the feed to close after cancel")
	}
}
