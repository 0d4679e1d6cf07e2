package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// Drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options selects and configures a backend
type Options struct {
	Driver      string
	Path        string // sqlite database file
	DSN         string // mysql DSN; must include parseTime=true
	BusyTimeout time.Duration
	Logger      gormlogger.Interface
}

// Storage wraps a GORM handle. A Storage returned inside Transaction is
// bound to that transaction.
type Storage struct {
	db     *gorm.DB
	driver string
}

// Open connects to the configured backend and migrates the schema
func Open(opts Options) (*Storage, error) {
	if opts.Logger == nil {
		opts.Logger = gormlogger.Discard
	}
	cfg := &gorm.Config{
		Logger:  opts.Logger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		dsn, err := sqliteDSN(opts.Path, opts.BusyTimeout)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("mysql driver requires a DSN")
		}
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", opts.Driver, err)
	}

	if opts.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(entity.Models()...); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Storage{db: db, driver: opts.Driver}, nil
}

func sqliteDSN(path string, busyTimeout time.Duration) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite driver requires a database path")
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating data directory: %w", err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		path, busyTimeout.Milliseconds()), nil
}

// Driver returns the backend name
func (s *Storage) Driver() string {
	return s.driver
}

// DB exposes the GORM handle for packages that own their own queries
func (s *Storage) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting database handle: %w", err)
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction. fn must use the Storage
// it is given, not the outer one.
func (s *Storage) Transaction(ctx context.Context, fn func(tx *Storage) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx, driver: s.driver})
	})
}

// first loads one row into dest, reporting ok=false when none matched
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
