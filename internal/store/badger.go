// internal/store/badger.go
package store

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Options configures the embedded badger database backing the
// interaction log and key-value state.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory skips disk persistence. Used by tests.
	InMemory bool
	// SyncWrites forces fsync on commit. On for production, off for tests.
	SyncWrites bool
	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultOptions returns durable production settings for the given
// directory.
func DefaultOptions(path string) Options {
	return Options{Path: path, SyncWrites: true}
}

// InMemoryOptions returns settings for tests: no disk, no fsync.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// Open opens (creating if needed) the badger database described by opts.
// The caller owns the returned handle and must Close it.
func Open(opts Options) (*badger.DB, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("database path required")
		}
		if err := os.MkdirAll(opts.Path, 0700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
