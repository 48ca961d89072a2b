package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := NewLimiter(5, time.Minute)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("user-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("user-1") {
		t.Error("request over the limit should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()

	if !l.Allow("user-1") {
		t.Fatal("first request for user-1 should be allowed")
	}
	if !l.Allow("user-2") {
		t.Error("user-2 should have a separate bucket")
	}
}

func TestEmptyKeyBypasses(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("") {
			t.Error("empty key should never be limited")
		}
	}
}

func TestAllowStrictUsesSeparateBudget(t *testing.T) {
	l := NewLimiter(100, time.Minute)
	defer l.Stop()

	if !l.AllowStrict("1.2.3.4", 1, time.Minute) {
		t.Fatal("first strict request should be allowed")
	}
	if l.AllowStrict("1.2.3.4", 1, time.Minute) {
		t.Error("second strict request should be denied")
	}
	if !l.Allow("1.2.3.4") {
		t.Error("regular budget should be unaffected by the strict one")
	}
}
