// Package models defines the client-side data model of TechTrack: entity
// types and records, their typed payloads, identifiers that are either local
// (allocated on the device) or remote (assigned by the backend), and the
// entries of the sync queue.
package models
