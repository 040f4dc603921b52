// Package logging builds the process logger: a structured slog logger
// with optional credential redaction so secret material never reaches
// log output whole.
package logging
