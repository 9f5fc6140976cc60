package domain

import (
	"testing"
	"time"

	"github.com/cinderfile/cinder/internal/ids"
)

func TestDownloadLimitExpired(t *testing.T) {
	now := time.Now()
	linkID, _ := ids.Generate(ids.Link)
	d := DownloadLimit{LinkID: linkID, RemainingAttempts: 3, ExpiryDate: now.Add(time.Hour)}
	if d.Expired(now) {
		t.Fatalf("should not be expired an hour before expiry")
	}
	if !d.Expired(now.Add(2 * time.Hour)) {
		t.Fatalf("should be expired two hours later")
	}
}

func TestDownloadLimitEqualHandlesNilLastAttempt(t *testing.T) {
	linkID, _ := ids.Generate(ids.Link)
	expiry := time.Now().Add(time.Hour)
	a := DownloadLimit{LinkID: linkID, RemainingAttempts: 2, ExpiryDate: expiry}
	b := DownloadLimit{LinkID: linkID, RemainingAttempts: 2, ExpiryDate: expiry}
	if !a.Equal(b) {
		t.Fatalf("expected equal when both LastAttemptAt are nil")
	}

	attempt := time.Now()
	c := DownloadLimit{LinkID: linkID, RemainingAttempts: 2, ExpiryDate: expiry, LastAttemptAt: &attempt}
	if a.Equal(c) {
		t.Fatalf("expected unequal when only one LastAttemptAt is nil")
	}
	d := DownloadLimit{LinkID: linkID, RemainingAttempts: 2, ExpiryDate: expiry, LastAttemptAt: &attempt}
	if !c.Equal(d) {
		t.Fatalf("expected equal when both LastAttemptAt point to the same instant")
	}
}
