// Package artifact defines the typed stage artifacts exchanged through the
// episode workspace and the named-schema validation applied on every read
// and write boundary.
package artifact
