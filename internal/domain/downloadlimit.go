package domain

import (
	"time"

	"github.com/cinderfile/cinder/internal/ids"
)

// DownloadLimit tracks remaining download attempts for a link (spec.md §3).
// Created when upload finalizes; mutated only by the verify step; deleted
// on burn or expiry sweep.
type DownloadLimit struct {
	LinkID            ids.LinkID
	RemainingAttempts uint16
	ExpiryDate        time.Time
	LastAttemptAt     *time.Time // nil until the first attempt
}

// Expired reports whether the limit record is past its expiry at now.
func (d DownloadLimit) Expired(now time.Time) bool {
	return !now.Before(d.ExpiryDate)
}

// Equal compares two DownloadLimit records by value, treating LastAttemptAt
// as equal when either both are nil or both point to the same instant
// (spec.md §9 Open Question 3: the source's unguarded
// lastAttemptAt.equals() null-pointer bug is not reproduced here).
func (d DownloadLimit) Equal(other DownloadLimit) bool {
	if !d.LinkID.Equal(other.LinkID) {
		return false
	}
	if d.RemainingAttempts != other.RemainingAttempts {
		return false
	}
	if !d.ExpiryDate.Equal(other.ExpiryDate) {
		return false
	}
	switch {
	case d.LastAttemptAt == nil && other.LastAttemptAt == nil:
		return true
	case d.LastAttemptAt == nil || other.LastAttemptAt == nil:
		return false
	default:
		return d.LastAttemptAt.Equal(*other.LastAttemptAt)
	}
}
