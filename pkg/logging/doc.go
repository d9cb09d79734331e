// Package logging provides MagicTunnel's structured logging facade.
//
// It wraps log/slog with a fixed severity set (Debug/Info/Warn/Error) and a
// subsystem tag on every entry, so gateway, federation, catalog, and
// discovery code all log consistently. Audit records security-sensitive
// events (token refresh, re-auth, denylist hits) with an [AUDIT] prefix
// for easy downstream filtering.
package logging
