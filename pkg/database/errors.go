package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath      = errors.New("invalid database path")
	ErrInvalidMaxConnections    = errors.New("invalid max connections")
	ErrInvalidConnectionTimeout = errors.New("invalid connection timeout")
	ErrInvalidQueueSize         = errors.New("invalid queue size")
	ErrInvalidSynchronousMode   = errors.New("invalid synchronous mode")
)

// Database operation errors
var (
	ErrStoreClosed     = errors.New("history store is closed")
	ErrQueueFull       = errors.New("history queue is full")
	ErrMigrationFailed = errors.New("migration failed")
	ErrChecksumChanged = errors.New("applied migration checksum changed")
)
