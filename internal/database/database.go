package database

import (
	"fmt"
	"strings"

	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Env == "development" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Silent
	}

	log.Info("connecting to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("dsn", maskPassword(cfg.Database.DSN)))

	db, err := gorm.Open(dialector(cfg.Database), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection successful")
	return db, nil
}

func dialector(cfg config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver == "mysql" {
		return mysql.Open(cfg.DSN)
	}
	return postgres.Open(cfg.DSN)
}

func maskPassword(dsn string) string {
	if i := strings.Index(dsn, "password="); i >= 0 {
		end := strings.IndexByte(dsn[i:], ' ')
		if end < 0 {
			return dsn[:i] + "password=***"
		}
		return dsn[:i] + "password=***" + dsn[i+end:]
	}
	if at := strings.LastIndexByte(dsn, '@'); at >= 0 {
		if colon := strings.IndexByte(dsn[:at], ':'); colon >= 0 {
			return dsn[:colon+1] + "***" + dsn[at:]
		}
	}
	return dsn
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running migrations")

	err := db.AutoMigrate(
		&models.User{},
		&models.Student{},
		&models.Subject{},
		&models.SubjectOffering{},
		&models.Exam{},
		&models.Mark{},
		&models.GradeBoundary{},
		&models.AuditLog{},
		&models.RefreshToken{},
	)
	if err != nil {
		return err
	}

	// Lookup paths used by the results view
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_marks_student ON marks(student_id)",
		"CREATE INDEX IF NOT EXISTS idx_boundaries_class_created ON grade_boundaries(class_name, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_offerings_class ON subject_offerings(class_name)",
	}
	if db.Dialector.Name() == "mysql" {
		// MySQL has no CREATE INDEX IF NOT EXISTS
		return nil
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn("index creation failed", zap.String("stmt", stmt), zap.Error(err))
		}
	}
	return nil
}
