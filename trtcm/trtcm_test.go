package trtcm

import "testing"

func TestNewProfileValidation(t *testing.T) {
	tests := []struct {
		name                   string
		cir, pir, cbs, pbs uint64
		wantErr            bool
	}{
		{name: "valid", cir: 100, pir: 200, cbs: 1000, pbs: 2000},
		{name: "equal rates and bursts ok", cir: 100, pir: 100, cbs: 1000, pbs: 1000},
		{name: "pir below cir", cir: 200, pir: 100, cbs: 1000, pbs: 2000, wantErr: true},
		{name: "pbs below cbs", cir: 100, pir: 200, cbs: 2000, pbs: 1000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfile(tt.cir, tt.pir, tt.cbs, tt.pbs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProfile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestColorAwareCheckAlwaysRed covers scenario S2/S3: a profile with
// CIR=PIR=0 and empty bursts never has tokens to spend, so every packet
// metering against it is colored Red regardless of input color.
func TestColorAwareCheckAlwaysRed(t *testing.T) {
	profile, err := NewProfile(0, 0, 0, 0)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	var state State
	Config(&state, profile)

	for i, in := range []Color{Green, Yellow, Red} {
		got := ColorAwareCheck(&state, profile, uint64(i), 100, in)
		if got != Red {
			t.Errorf("ColorAwareCheck(in=%v) = %v, want Red", in, got)
		}
	}
}

// TestColorAwareCheckNeverUpgrades verifies the color-aware invariant
// from the glossary: a packet pre-colored Yellow can be confirmed Yellow
// or downgraded to Red, but never promoted to Green, even with bursts
// large enough to cover it.
func TestColorAwareCheckNeverUpgrades(t *testing.T) {
	profile, err := NewProfile(1000, 2000, 1_000_000, 2_000_000)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	var state State
	Config(&state, profile)

	got := ColorAwareCheck(&state, profile, 0, 100, Yellow)
	if got == Green {
		t.Fatalf("ColorAwareCheck(in=Yellow) = Green, must never upgrade")
	}
	if got != Yellow {
		t.Fatalf("ColorAwareCheck(in=Yellow) = %v, want Yellow (ample tokens)", got)
	}

	got = ColorAwareCheck(&state, profile, 0, 100, Red)
	if got != Red {
		t.Fatalf("ColorAwareCheck(in=Red) = %v, want Red always", got)
	}
}

// TestColorAwareCheckGreenWithinCommitted exercises the ordinary green
// path: a fresh state with ample committed burst colors a small packet
// Green and debits the committed bucket.
func TestColorAwareCheckGreenWithinCommitted(t *testing.T) {
	profile, err := NewProfile(1000, 2000, 1500, 3000)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	var state State
	Config(&state, profile)

	got := ColorAwareCheck(&state, profile, 0, 1000, Green)
	if got != Green {
		t.Fatalf("ColorAwareCheck = %v, want Green", got)
	}

	// Second packet of 1000 bytes exceeds the remaining committed burst
	// (1500-1000=500) but fits comfortably in the peak bucket.
	got = ColorAwareCheck(&state, profile, 0, 1000, Green)
	if got != Yellow {
		t.Fatalf("ColorAwareCheck = %v, want Yellow once committed burst is exhausted", got)
	}
}

func TestColorString(t *testing.T) {
	if Green.String() != "green" || Yellow.String() != "yellow" || Red.String() != "red" {
		t.Fatalf("unexpected Color.String() outputs")
	}
}
