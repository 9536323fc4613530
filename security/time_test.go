package security

import (
	"testing"
	"time"
)

func TestIsTokenExpired(t *testing.T) {
	if IsTokenExpired(time.Now().Add(time.Minute)) {
		t.Error("future expiry should not be expired")
	}
	if !IsTokenExpired(time.Now().Add(-time.Minute)) {
		t.Error("past expiry should be expired")
	}
}

func TestIsTokenExpiredWithGracePeriod(t *testing.T) {
	grace := DefaultClockSkewGracePeriod

	if IsTokenExpiredWithGracePeriod(time.Now().Add(-time.Second), grace) {
		t.Error("expiry within the grace period should still pass")
	}
	if !IsTokenExpiredWithGracePeriod(time.Now().Add(-time.Minute), grace) {
		t.Error("expiry beyond the grace period should fail")
	}
	if !IsTokenExpiredWithGracePeriod(time.Now().Add(-time.Second), 0) {
		t.Error("zero grace period means strict expiry")
	}
}
