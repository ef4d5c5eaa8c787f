package services

import (
	"errors"
	"testing"
	"time"

	domain "github.com/sparklehome/api/internal/domain"
)

func TestLifecycleTransitions(t *testing.T) {
	lifecycle := NewLifecycle(LifecycleDeps{})

	cases := []struct {
		name    string
		from    domain.BookingStatus
		to      domain.BookingStatus
		allowed bool
	}{
		{"pending to confirmed", domain.BookingStatusPending, domain.BookingStatusConfirmed, true},
		{"pending to cancelled", domain.BookingStatusPending, domain.BookingStatusCancelled, true},
		{"pending to completed", domain.BookingStatusPending, domain.BookingStatusCompleted, false},
		{"confirmed to in_progress", domain.BookingStatusConfirmed, domain.BookingStatusInProgress, true},
		{"confirmed to cancelled", domain.BookingStatusConfirmed, domain.BookingStatusCancelled, true},
		{"confirmed to pending", domain.BookingStatusConfirmed, domain.BookingStatusPending, false},
		{"in_progress to completed", domain.BookingStatusInProgress, domain.BookingStatusCompleted, true},
		{"in_progress to cancelled", domain.BookingStatusInProgress, domain.BookingStatusCancelled, false},
		{"completed is terminal", domain.BookingStatusCompleted, domain.BookingStatusCancelled, false},
		{"cancelled is terminal", domain.BookingStatusCancelled, domain.BookingStatusConfirmed, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lifecycle.CanTransition(tc.from, tc.to); got != tc.allowed {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
			err := lifecycle.EnsureTransition(tc.from, tc.to)
			if tc.allowed && err != nil {
				t.Fatalf("EnsureTransition(%s, %s) returned %v", tc.from, tc.to, err)
			}
			if !tc.allowed && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("EnsureTransition(%s, %s) = %v, want ErrInvalidTransition", tc.from, tc.to, err)
			}
		})
	}
}

func TestLifecycleApplySettlement(t *testing.T) {
	lifecycle := NewLifecycle(LifecycleDeps{})

	next, changed, err := lifecycle.ApplySettlement(domain.BookingStatusPending)
	if err != nil {
		t.Fatalf("ApplySettlement(pending) returned %v", err)
	}
	if !changed || next != domain.BookingStatusConfirmed {
		t.Fatalf("ApplySettlement(pending) = %s changed=%v, want confirmed changed=true", next, changed)
	}

	for _, status := range []domain.BookingStatus{
		domain.BookingStatusConfirmed,
		domain.BookingStatusInProgress,
		domain.BookingStatusCompleted,
	} {
		next, changed, err := lifecycle.ApplySettlement(status)
		if err != nil {
			t.Fatalf("ApplySettlement(%s) returned %v", status, err)
		}
		if changed || next != status {
			t.Fatalf("ApplySettlement(%s) = %s changed=%v, want no-op", status, next, changed)
		}
	}

	if _, _, err := lifecycle.ApplySettlement(domain.BookingStatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ApplySettlement(cancelled) = %v, want ErrInvalidTransition", err)
	}
}

func TestLifecycleEnsureMutable(t *testing.T) {
	lifecycle := NewLifecycle(LifecycleDeps{CancellationCutoff: 24 * time.Hour})
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	booking := func(status domain.BookingStatus, lead time.Duration) domain.Booking {
		at := now.Add(lead)
		return domain.Booking{
			ID:          "bkg_1",
			Status:      status,
			ServiceDate: at.Format(domain.ServiceDateLayout),
			ServiceTime: at.Format(domain.ServiceTimeLayout),
		}
	}

	if err := lifecycle.EnsureMutable(booking(domain.BookingStatusConfirmed, 25*time.Hour), now); err != nil {
		t.Fatalf("EnsureMutable 25h out returned %v", err)
	}
	if err := lifecycle.EnsureMutable(booking(domain.BookingStatusPending, 23*time.Hour), now); !errors.Is(err, ErrCancellationWindowExpired) {
		t.Fatalf("EnsureMutable 23h out = %v, want ErrCancellationWindowExpired", err)
	}
	if err := lifecycle.EnsureMutable(booking(domain.BookingStatusInProgress, 48*time.Hour), now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("EnsureMutable in_progress = %v, want ErrInvalidTransition", err)
	}
	if err := lifecycle.EnsureMutable(booking(domain.BookingStatusCompleted, 48*time.Hour), now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("EnsureMutable completed = %v, want ErrInvalidTransition", err)
	}
}

func TestLifecycleEnsureProgress(t *testing.T) {
	lifecycle := NewLifecycle(LifecycleDeps{})

	if err := lifecycle.EnsureProgress(domain.BookingStatusConfirmed, domain.BookingStatusInProgress); err != nil {
		t.Fatalf("EnsureProgress(confirmed, in_progress) returned %v", err)
	}
	if err := lifecycle.EnsureProgress(domain.BookingStatusInProgress, domain.BookingStatusCompleted); err != nil {
		t.Fatalf("EnsureProgress(in_progress, completed) returned %v", err)
	}
	if err := lifecycle.EnsureProgress(domain.BookingStatusPending, domain.BookingStatusInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("EnsureProgress(pending, in_progress) = %v, want ErrInvalidTransition", err)
	}
	if err := lifecycle.EnsureProgress(domain.BookingStatusConfirmed, domain.BookingStatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("EnsureProgress(confirmed, cancelled) = %v, want ErrInvalidTransition", err)
	}
}

func TestValidateStatus(t *testing.T) {
	status, err := ValidateStatus("in_progress")
	if err != nil {
		t.Fatalf("ValidateStatus(in_progress) returned %v", err)
	}
	if status != domain.BookingStatusInProgress {
		t.Fatalf("ValidateStatus(in_progress) = %s", status)
	}
	if _, err := ValidateStatus("archived"); err == nil {
		t.Fatal("ValidateStatus(archived) succeeded, want error")
	}
}
