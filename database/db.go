// Package database owns the process-wide gorm handle: opening SQLite or PostgreSQL,
// migrating the schema and bootstrapping the first administrator.
package database

import (
	"errors"
	"strings"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/util/crypto"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	db       *gorm.DB
	dbConfig *config.DatabaseConfig
)

func initModels() error {
	models := []any{
		&model.User{},
		&model.Movie{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			logger.Errorf("Error auto migrating model: %v", err)
			return err
		}
	}
	return nil
}

// initAdmin creates the administrator named by MARQUEE_ADMIN_EMAIL/PASSWORD when the
// users table is still empty.
func initAdmin() error {
	email, password := config.GetAdminEmail(), config.GetAdminPassword()
	if email == "" || password == "" {
		return nil
	}
	empty, err := isTableEmpty("users")
	if err != nil {
		logger.Warning("Error checking if users table is empty:", err)
		return err
	}
	if !empty {
		return nil
	}
	hash, err := crypto.HashPasswordAsBcrypt(password)
	if err != nil {
		return err
	}
	admin := &model.User{
		Email:        strings.ToLower(email),
		Role:         model.RoleAdmin,
		IsActive:     true,
		PasswordHash: hash,
	}
	logger.Infof("bootstrapping administrator %s", admin.Email)
	return db.Create(admin).Error
}

func isTableEmpty(tableName string) (bool, error) {
	var count int64
	err := db.Table(tableName).Count(&count).Error
	return count == 0, err
}

// InitDB opens the configured database, applies pragmas on SQLite and migrates the schema.
func InitDB(cfg *config.DatabaseConfig) error {
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectoryExists(); err != nil {
		return err
	}

	var gormLogger gormlogger.Interface
	if config.IsDebug() {
		gormLogger = gormlogger.Default
	} else {
		gormLogger = gormlogger.Discard
	}

	c := &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	}

	var dialector gorm.Dialector
	if cfg.IsPostgreSQL() {
		dialector = postgres.Open(cfg.GetDSN())
	} else {
		dialector = sqlite.Open(cfg.GetDSN())
	}

	conn, err := gorm.Open(dialector, c)
	if err != nil {
		return err
	}
	db = conn
	dbConfig = cfg

	if cfg.IsSQLite() {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		for _, pragma := range []string{
			"PRAGMA cache_size = -64000;",
			"PRAGMA temp_store = MEMORY;",
			"PRAGMA busy_timeout = 5000;",
		} {
			if _, err := sqlDB.Exec(pragma); err != nil {
				return err
			}
		}
	}

	if err := initModels(); err != nil {
		return err
	}
	if err := initAdmin(); err != nil {
		return err
	}

	if now, err := CurrentTime(); err == nil {
		logger.Infof("database ready, utc_time=%s", now)
	}
	return nil
}

// CurrentTime asks the database for its clock, which doubles as a connectivity check.
func CurrentTime() (string, error) {
	var now string
	query := "SELECT datetime('now')"
	if dbConfig != nil && dbConfig.IsPostgreSQL() {
		query = "SELECT to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS')"
	}
	err := db.Raw(query).Scan(&now).Error
	return now, err
}

func CloseDB() error {
	if db == nil {
		return nil
	}
	if dbConfig != nil && dbConfig.IsSQLite() {
		if err := Checkpoint(); err != nil {
			logger.Warningf("error executing checkpoint: %v", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}

func GetDB() *gorm.DB {
	return db
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate reports a unique constraint violation on either backend.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// Checkpoint flushes the SQLite write-ahead log into the main file.
func Checkpoint() error {
	return db.Exec("PRAGMA wal_checkpoint;").Error
}
