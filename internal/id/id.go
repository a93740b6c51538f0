// Package id mints job and webhook delivery identifiers.
package id

import "github.com/google/uuid"

// New returns a UUIDv7, so ids sort by creation time in the jobs table and
// in output object listings.
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}
