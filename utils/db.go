package utils

import (
	"context"
	"errors"
	"time"

	"github.com/adelegard/TouchrServer/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// CustomLogger only reports slow queries and real errors.
type CustomLogger struct {
	SlowThreshold time.Duration
}

func (l *CustomLogger) LogMode(level logger.LogLevel) logger.Interface {
	return l
}

func (l *CustomLogger) Info(ctx context.Context, msg string, data ...interface{}) {}

func (l *CustomLogger) Warn(ctx context.Context, msg string, data ...interface{}) {}

func (l *CustomLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if msg != "record not found" {
		Log.Errorf("[GORM] "+msg, data...)
	}
}

func (l *CustomLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := logrus.Fields{"elapsed": elapsed.String(), "rows": rows, "sql": sql}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		Log.WithFields(fields).WithError(err).Error("gorm query failed")
	} else if elapsed >= l.SlowThreshold {
		Log.WithFields(fields).Warn("slow sql")
	}
}

// NewGormConfig returns the gorm settings shared by the server and the tests.
func NewGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         &CustomLogger{SlowThreshold: 100 * time.Millisecond},
		TranslateError: true,
		// Teardown and cascades delete rows in parallel, so rows reference each other by id only.
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// InitDB opens the Postgres connection and migrates the schema.
func InitDB(databaseURL string) error {
	var err error
	DB, err = gorm.Open(postgres.Open(databaseURL), NewGormConfig())
	if err != nil {
		return err
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(20)

	if err := Migrate(DB); err != nil {
		return err
	}

	Log.Info("Database connected")
	return nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.UserRole{},
		&model.FriendRequest{},
		&model.TouchType{},
		&model.UserTouchType{},
		&model.Touch{},
		&model.Installation{},
		&model.Notification{},
		&model.NotificationTemplate{},
		&model.SystemSettings{},
		&model.JobRun{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
