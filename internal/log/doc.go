// Package log provides structured logging with automatic redaction of
// sensitive values.
//
// webaudit sends user-configured cookies and authorization headers with its
// requests (site configs can carry session credentials for authenticated
// audits). Those values must never reach log output, so every logger built
// here wraps its handler in a SecureHandler that masks sensitive attributes
// before they are written.
package log
