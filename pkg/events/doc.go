// Package events filters, formats and persists Strava club events.
//
// Occurrence timestamps are parsed as RFC 3339 and rendered in their own
// offset, so "2024-05-01T10:00:00Z" always starts at 10:00 regardless of the
// host time zone.
package events
