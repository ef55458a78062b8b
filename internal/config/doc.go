// Package config handles configuration loading for coven-identity.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_IDENTITY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/identity.yaml
//  3. ~/.config/coven/identity.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  access_secret: "${COVEN_ACCESS_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Example
//
//	database:
//	  path: "./identity.db"
//
//	auth:
//	  issuer: "coven-identity"
//	  access_secret: "${COVEN_ACCESS_SECRET}"
//	  refresh_secret: "${COVEN_REFRESH_SECRET}"
//	  reset_secret: "${COVEN_RESET_SECRET}"
//	  access_ttl: "15m"
//	  refresh_ttl: "24h"
//	  refresh_extended_ttl: "720h"
//	  reset_ttl: "10m"
//
//	otp:
//	  backend: "sqlite"   # or "redis"
//	  ttl: "5m"
//	  cooldown: "30s"
//	  window: "1h"
//	  max_per_window: 5
//
//	redis:
//	  addr: "localhost:6379"
//
//	google:
//	  client_id: "${GOOGLE_CLIENT_ID}"
//
//	delivery:
//	  mode: "smtp"        # or "log"
//	  smtp:
//	    host: "smtp.example.com"
//	    port: "587"
//	    username: "noreply@example.com"
//	    password: "${SMTP_PASSWORD}"
//
//	logging:
//	  level: "info"       # debug, info, warn, error
//	  format: "text"      # text or json
//
// Secrets must be at least 32 bytes and all three must differ. Durations use
// time.ParseDuration syntax.
package config
