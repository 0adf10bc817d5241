package certlifecycle

import (
	"testing"
	"time"
)

func TestNeedsRenewalAtTreatsExactThresholdAsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	threshold := 7 * 24 * time.Hour

	if !needsRenewalAt(now.Add(threshold), now, threshold) {
		t.Errorf("expected a certificate expiring in exactly the threshold to need renewal")
	}
}

func TestNeedsRenewalAtOneNanosecondPastThresholdIsNotDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	threshold := 7 * 24 * time.Hour

	if needsRenewalAt(now.Add(threshold+time.Nanosecond), now, threshold) {
		t.Errorf("expected a certificate expiring one nanosecond past the threshold to not need renewal yet")
	}
}

func TestNeedsRenewalAtAlreadyExpiredIsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	threshold := 7 * 24 * time.Hour

	if !needsRenewalAt(now.Add(-time.Hour), now, threshold) {
		t.Errorf("expected an already-expired certificate to need renewal")
	}
}
