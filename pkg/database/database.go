package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/jordanlanch/leadbridge/config"
	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/store/gormstore"
	"github.com/jordanlanch/leadbridge/pkg/store/mongostore"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Backend names the storage engine selected by a DATABASE_URL
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongodb"
	BackendSQLite   Backend = "sqlite"
)

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for PostgreSQL connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// DefaultPoolConfig returns sensible defaults for connection pooling
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// DetectBackend picks the storage engine from the URL scheme. Anything that
// is not a postgres or mongodb URL is treated as a SQLite DSN.
func DetectBackend(databaseURL string) Backend {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return BackendPostgres
	case strings.HasPrefix(databaseURL, "mongodb://"), strings.HasPrefix(databaseURL, "mongodb+srv://"):
		return BackendMongo
	default:
		return BackendSQLite
	}
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()

	// Set SSL mode (overrides any existing sslmode in URL)
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}

	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// Open connects to the store named by cfg.DatabaseURL and prepares its schema
func Open(ctx context.Context, cfg *config.Config) (domain.LeadRepository, error) {
	switch DetectBackend(cfg.DatabaseURL) {
	case BackendMongo:
		log.Printf("🍃 Connecting to MongoDB (database: %s)", cfg.MongoDatabase)
		store, err := mongostore.Connect(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil

	case BackendPostgres:
		pool := DefaultPoolConfig()
		if cfg.DBMaxOpenConns > 0 {
			pool.MaxOpenConns = cfg.DBMaxOpenConns
		}
		if cfg.DBMaxIdleConns > 0 {
			pool.MaxIdleConns = cfg.DBMaxIdleConns
		}
		var sslCfg *SSLConfig
		if cfg.DBSSLMode != "" {
			sslCfg = &SSLConfig{
				Mode:         cfg.DBSSLMode,
				CertPath:     cfg.DBSSLCertPath,
				KeyPath:      cfg.DBSSLKeyPath,
				RootCertPath: cfg.DBSSLRootCertPath,
			}
		}
		db, err := OpenPostgres(cfg.DatabaseURL, pool, sslCfg)
		if err != nil {
			return nil, err
		}
		return migrate(ctx, db)

	default:
		db, err := OpenSQLite(strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return migrate(ctx, db)
	}
}

// OpenPostgres opens a pooled PostgreSQL connection through lib/pq
func OpenPostgres(databaseURL string, poolCfg PoolConfig, sslCfg *SSLConfig) (*gorm.DB, error) {
	connStr, err := BuildConnectionString(databaseURL, sslCfg)
	if err != nil {
		return nil, fmt.Errorf("failed building connection string: %w", err)
	}

	if sslCfg != nil && sslCfg.Mode != "" && sslCfg.Mode != "disable" {
		log.Printf("🔒 Database SSL enabled (mode: %s)", sslCfg.Mode)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        connStr,
	}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(poolCfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(poolCfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(poolCfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(poolCfg.ConnMaxIdleTime)

	log.Printf("✅ Database connection pool configured (max_open: %d, max_idle: %d, max_lifetime: %s, max_idle_time: %s)",
		poolCfg.MaxOpenConns, poolCfg.MaxIdleConns, poolCfg.ConnMaxLifetime, poolCfg.ConnMaxIdleTime)

	return db, nil
}

// OpenSQLite opens a SQLite database file. Writers are serialized since
// SQLite allows a single writer at a time.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "leadbridge.db"
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	log.Println("Using SQLite for local development:", dsn)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed opening sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

func migrate(ctx context.Context, db *gorm.DB) (domain.LeadRepository, error) {
	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Println("✅ Database connected and migrations applied")
	return store, nil
}
