package core

import (
	"testing"
	"time"
)

func TestSessionGetIsIdempotentWithinWindow(t *testing.T) {
	sm := NewSessionMap(time.Minute)
	a := sm.GetSession("abc")
	b := sm.GetSession("abc")
	if a != b {
		t.Fatal("two GetSession calls for the same live id must return the same Context")
	}
}

func TestSessionFreshAfterRemove(t *testing.T) {
	sm := NewSessionMap(time.Minute)
	a := sm.GetSession("abc")
	sm.RemoveSession("abc")
	b := sm.GetSession("abc")
	if a == b {
		t.Fatal("GetSession after RemoveSession must return a fresh Context")
	}
}

func TestSessionExpiresAfterTimeout(t *testing.T) {
	sm := NewSessionMap(time.Second)
	a := sm.GetSession("abc")
	sm.mu.Lock()
	s := sm.data["abc"]
	s.Expiry = time.Now().Add(-time.Millisecond)
	sm.data["abc"] = s
	sm.mu.Unlock()

	b := sm.GetSession("abc")
	if a == b {
		t.Fatal("expired session should be replaced with a fresh Context")
	}
}

func TestSetSessionTimeoutCreatesOnMissingID(t *testing.T) {
	sm := NewSessionMap(time.Minute)
	sm.SetSessionTimeout("new-id", 5*time.Second)
	sm.mu.Lock()
	_, ok := sm.data["new-id"]
	sm.mu.Unlock()
	if !ok {
		t.Fatal("SetSessionTimeout on a missing id should create it")
	}
}
