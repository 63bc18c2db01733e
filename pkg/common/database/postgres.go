package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/synaptica-ai/studyrunner/pkg/common/config"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresDSN renders the libpq keyword/value connection string for the sink
// database. Values are quoted when they are empty or contain spaces, quotes or
// backslashes.
func PostgresDSN(cfg *config.Config) string {
	pairs := []struct{ key, value string }{
		{"host", cfg.PostgresHost},
		{"port", cfg.PostgresPort},
		{"user", cfg.PostgresUser},
		{"password", cfg.PostgresPassword},
		{"dbname", cfg.PostgresDB},
		{"sslmode", cfg.PostgresSSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.key+"="+quoteDSNValue(p.value))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// OpenPostgres connects the response sink, applies the pool limits from cfg
// and checks the connection before returning. GORM's own logging goes through
// the process logger at warn level, plus queries slower than cfg.SlowQuery.
func OpenPostgres(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(PostgresDSN(cfg)), &gorm.Config{
		Logger: gormlogger.New(logger.Log, gormlogger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres %s: %w", cfg.PostgresDB, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.PostgresMaxOpen)
	sqlDB.SetMaxIdleConns(cfg.PostgresMaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.PostgresConnLife)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.PostgresDB, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"db":       cfg.PostgresDB,
		"host":     cfg.PostgresHost,
		"max_open": cfg.PostgresMaxOpen,
		"max_idle": cfg.PostgresMaxIdle,
	}).Info("Connected to PostgreSQL")
	return db, nil
}

func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
