package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Ping timeout for redis and the archive database at startup
const PingTimeout = 5 * time.Second

// Upper bound for one maintenance pass
const MaintenanceTimeout = 30 * time.Second

// Buffered frames per SSE subscriber
const SubscriberBuffer = 100
