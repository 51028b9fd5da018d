// Package services contains the application services of the TechTrack
// client: local entity commands that record sync queue entries, and the
// session (bearer token, device id, logout).
package services
