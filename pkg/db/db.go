package db

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

const alertCreatedCallback = "seizure_alert:alert_created"

type DB struct {
	Conn    *gorm.DB
	Changes *ChangeFeed
}

// Open connects, migrates and installs the alert-created change feed on the connection.
func Open(dialector gorm.Dialector) (*DB, error) {
	log := common.GetLoggerWith(common.LoggerNameStore)

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one pooled connection avoids "database is locked" between
	// request handlers and the change feed consumer.
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(&models.Device{}, &models.Reading{}, &models.Alert{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("Database migration completed")

	if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable sqlite foreign key support: %w", err)
	}

	if err := conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to set sqlite journal mode: %w", err)
	}

	instance := &DB{Conn: conn, Changes: NewChangeFeed()}

	err = conn.Callback().Create().
		After("gorm:commit_or_rollback_transaction").
		Register(alertCreatedCallback, instance.publishAlertCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to register change feed: %w", err)
	}

	return instance, nil
}

func (d *DB) publishAlertCreated(tx *gorm.DB) {
	if tx.Error != nil {
		return
	}
	alert, ok := tx.Statement.Dest.(*models.Alert)
	if !ok {
		return
	}
	d.Changes.Publish(models.AlertCreated{
		DeviceID: alert.DeviceID,
		AlertID:  alert.ID,
		Alert:    *alert,
	})
}

func (d *DB) Close() error {
	d.Changes.Close()
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func UseSqliteDialector() gorm.Dialector {
	var dbPath string
	var found bool
	if dbPath, found = os.LookupEnv(common.EnvKeyIOTDbPath); !found {
		dbPath = "readings.db"
	}
	return sqlite.Open(dbPath)
}

func UseSqliteDialectorAt(dbPath string) gorm.Dialector {
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseIsolatedMemorySqliteDialector gives every caller its own in-memory database.
func UseIsolatedMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}
