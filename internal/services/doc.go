// Package services defines the shared error taxonomy and context keys used
// by the pipeline stages and external adapter clients.
package services
