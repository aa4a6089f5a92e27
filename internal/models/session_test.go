package models

import (
	"testing"
	"time"
)

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	live := Session{ExpiresAt: now.Add(time.Minute)}
	if live.Expired(now) {
		t.Fatalf("session expiring in the future reported expired")
	}

	dead := Session{ExpiresAt: now.Add(-time.Minute)}
	if !dead.Expired(now) {
		t.Fatalf("past-expiry session reported live")
	}

	// Expiry boundary is exclusive: a session expiring exactly now is
	// no longer usable.
	edge := Session{ExpiresAt: now}
	if !edge.Expired(now) {
		t.Fatalf("session at its expiry instant reported live")
	}
}

func TestSessionHasIndex(t *testing.T) {
	index := "abc"
	if (Session{TokenIndex: &index}).HasIndex() == false {
		t.Fatalf("indexed session reported legacy")
	}
	if (Session{}).HasIndex() {
		t.Fatalf("legacy session reported indexed")
	}
}
