package signal

import (
	"errors"
	"hash"
	"strings"
	"testing"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

func TestValidator_Scenarios(t *testing.T) {
	d, _ := NewDeriver([]byte("SECRET"))
	v := NewValidator(d)
	const issued = "2025-01-01T00:00:00.000Z"

	tests := []struct {
		name       string
		code       string
		now        time.Time
		window     int
		wantKind   models.OutcomeKind
		wantReason string
	}{
		{"approved", "BED41B2021A8DA6A", t0.Add(30 * time.Second), 60, models.OutcomeApproved, "Valid signal. Verified in 30.0s"},
		{"lowercase accepted", "bed41b2021a8da6a", t0.Add(30 * time.Second), 60, models.OutcomeApproved, "Valid signal. Verified in 30.0s"},
		{"expired", "BED41B2021A8DA6A", t0.Add(120 * time.Second), 60, models.OutcomeExpired, "Signal expired. Elapsed: 120.0s / 60s"},
		{"expired wins over mismatch", "0000000000000000", t0.Add(130 * time.Second), 60, models.OutcomeExpired, "Signal expired. Elapsed: 130.0s / 60s"},
		{"boundary is inclusive", "BED41B2021A8DA6A", t0.Add(60 * time.Second), 60, models.OutcomeApproved, "Valid signal. Verified in 60.0s"},
		{"mismatch", "BED41B2021A8DA6B", t0.Add(10 * time.Second), 60, models.OutcomeMismatch, "Signal code mismatch. Invalid signature."},
		{"default window", "BED41B2021A8DA6A", t0.Add(61 * time.Second), 0, models.OutcomeExpired, "Signal expired. Elapsed: 61.0s / 60s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := v.Validate("TX123", tt.code, issued, tt.window, tt.now)
			if o.Kind != tt.wantKind || o.Reason != tt.wantReason {
				t.Errorf("got %s %q, want %s %q", o.Kind, o.Reason, tt.wantKind, tt.wantReason)
			}
			if o.Approved != (tt.wantKind == models.OutcomeApproved) {
				t.Errorf("Approved = %v", o.Approved)
			}
		})
	}
}

func TestValidator_BadTimestamp(t *testing.T) {
	d, _ := NewDeriver([]byte("SECRET"))
	o := NewValidator(d).Validate("TX123", "BED41B2021A8DA6A", "yesterday", 60, t0)
	if o.Approved || o.Kind != models.OutcomeError || !strings.HasPrefix(o.Reason, "Validation error: ") {
		t.Errorf("got %+v", o)
	}
	if !errors.Is(ErrOf(o), ErrValidation) {
		t.Errorf("ErrOf = %v", ErrOf(o))
	}
}

func TestValidator_DeriveFailureIsOutcome(t *testing.T) {
	d, _ := NewDeriver([]byte("SECRET"), WithHash(func() hash.Hash { panic("boom") }))
	o := NewValidator(d).Validate("TX123", "BED41B2021A8DA6A", "2025-01-01T00:00:00.000Z", 60, t0)
	if o.Approved || o.Kind != models.OutcomeError {
		t.Errorf("got %+v", o)
	}
}

func TestErrOf(t *testing.T) {
	cases := map[models.OutcomeKind]error{
		models.OutcomeExpired:    ErrExpiredSignal,
		models.OutcomeMismatch:   ErrSignatureMismatch,
		models.OutcomeReplay:     ErrReplay,
		models.OutcomeSuperseded: ErrSuperseded,
	}
	for kind, want := range cases {
		if got := ErrOf(&models.ValidationOutcome{Kind: kind}); !errors.Is(got, want) {
			t.Errorf("%s: got %v", kind, got)
		}
	}
	if ErrOf(&models.ValidationOutcome{Approved: true, Kind: models.OutcomeApproved}) != nil {
		t.Error("approved outcome should map to nil")
	}
}
