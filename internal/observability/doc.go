// Package observability provides structured logging for the session auth service.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL and LOG_FORMAT
//   - Request logging middleware carrying the chi request ID
package observability
