package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	goThrottle "github.com/MrEthical07/goThrottle"
	"github.com/MrEthical07/goThrottle/clock"
	"github.com/MrEthical07/goThrottle/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	storeKind  string
	redisAddr  string
	sqlitePath string
	logLevel   string
	auditLog   bool
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger(), nil
}

func loadConfig(path string) (goThrottle.Config, error) {
	if path == "" {
		return goThrottle.DefaultConfig(), nil
	}
	return goThrottle.LoadConfig(path)
}

// openEngine builds an engine over the selected store. The returned func
// releases the engine and the store connection.
func openEngine(opts *globalOptions, log zerolog.Logger) (*goThrottle.Engine, func(), error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Lint() {
		log.Warn().Str("code", w.Code).Msg(w.Message)
	}

	s, closeStore, err := openStore(opts)
	if err != nil {
		return nil, nil, err
	}

	b := goThrottle.New().WithConfig(cfg).WithStore(s).WithLogger(log)
	if opts.auditLog {
		b = b.WithAuditSink(goThrottle.NewJSONWriterSink(os.Stderr))
	}
	engine, err := b.Build()
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return engine, func() {
		engine.Close()
		closeStore()
	}, nil
}

func openStore(opts *globalOptions) (store.Store, func(), error) {
	switch opts.storeKind {
	case "memory":
		return store.NewMemory(clock.System{}), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		return store.NewRedis(client, store.RedisOptions{}), func() { _ = client.Close() }, nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(opts.sqlitePath), &gorm.Config{Logger: logger.Discard})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", opts.sqlitePath, err)
		}
		return sqlStore(db)
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, redis or sqlite)", opts.storeKind)
	}
}

// sqlStore wraps db in a store. db is closed if the store cannot be set up.
func sqlStore(db *gorm.DB) (store.Store, func(), error) {
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	s, err := store.NewSQL(db, clock.System{})
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return s, closeDB, nil
}
