// Package venue holds the monitored venue reference data.
//
// Venues are loaded from a YAML file, kept in an insertion-ordered Registry
// and replaced wholesale on refresh. The Registry is owned by one presence
// engine; nothing here is process-global.
package venue
