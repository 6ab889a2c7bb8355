// Package llm provides the OpenRouter-compatible chat completion client
// used by content analysis and script generation. Requests are JSON-only,
// retried with exponential backoff on transient provider failures, and
// terminal errors carry service markers so callers can distinguish rate
// limits, provider outages, and model refusals.
package llm
