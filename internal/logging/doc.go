// Package logging builds the slog loggers used across the pipeline and
// standardizes structured field keys, context-derived attributes, and
// progress log sampling.
package logging
