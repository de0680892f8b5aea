// Package trtcm implements the two-rate three-color marker (trTCM) token
// bucket primitive used to meter packets against a committed and peak
// information rate. It plays the role of the external meter library that
// the table-action engine treats as a given primitive: a profile, a
// per-flow state, and a color-aware check function.
package trtcm

import "fmt"

// A Color is the three-valued result of a metering or policing decision.
type Color uint8

// Color values, encoded in the low two bits of the packed per-entry state
// used by the tableaction package.
const (
	Green Color = iota
	Yellow
	Red
)

// String returns the name of c.
func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	default:
		return fmt.Sprintf("trtcm.Color(%d)", uint8(c))
	}
}

// A Profile holds the immutable parameters of a trTCM meter: committed and
// peak information rates, and committed and peak burst sizes. Rates are in
// bytes per tick, where a "tick" is whatever time unit the caller passes to
// ColorAwareCheck (the tableaction hot path uses nanoseconds).
type Profile struct {
	CIR uint64 // Committed Information Rate, bytes/tick.
	PIR uint64 // Peak Information Rate, bytes/tick. Must be >= CIR.
	CBS uint64 // Committed Burst Size, bytes.
	PBS uint64 // Peak Burst Size, bytes. Must be >= CBS.
}

// NewProfile validates and builds a Profile. PIR must be at least CIR and
// PBS at least CBS, mirroring the constraint trTCM imposes on its two
// token buckets.
func NewProfile(cir, pir, cbs, pbs uint64) (*Profile, error) {
	if pir < cir {
		return nil, fmt.Errorf("trtcm: PIR (%d) must be >= CIR (%d)", pir, cir)
	}
	if pbs < cbs {
		return nil, fmt.Errorf("trtcm: PBS (%d) must be >= CBS (%d)", pbs, cbs)
	}

	return &Profile{CIR: cir, PIR: pir, CBS: cbs, PBS: pbs}, nil
}

// A State is the live, per-flow trTCM bucket state: the committed (C) and
// excess/peak (E) token buckets plus the tick of their last update.
type State struct {
	tc   uint64 // committed bucket, bytes
	te   uint64 // peak bucket, bytes
	last uint64 // tick of last update
}

// Config (re)initializes state from profile, filling both buckets to their
// burst size and resetting the last-update tick to zero. This is called
// once, at apply time, before any packet is metered against the state.
func Config(state *State, profile *Profile) {
	state.tc = profile.CBS
	state.te = profile.PBS
	state.last = 0
}

// ColorAwareCheck advances state by the elapsed time since its last update,
// refilling both buckets at their configured rates (capped at their burst
// sizes), then classifies a packet of the given length arriving with
// inputColor. Color-aware metering never upgrades a color: a packet that
// arrives pre-colored Yellow or Red can only be confirmed or downgraded to
// Red, never promoted back to Green.
func ColorAwareCheck(state *State, profile *Profile, time uint64, length uint32, inputColor Color) Color {
	if time > state.last {
		elapsed := time - state.last

		state.tc = addSaturating(state.tc, profile.CIR*elapsed, profile.CBS)
		state.te = addSaturating(state.te, profile.PIR*elapsed, profile.PBS)
		state.last = time
	}

	n := uint64(length)

	if inputColor == Red {
		return Red
	}

	if inputColor == Green && state.tc >= n {
		state.tc -= n
		return Green
	}

	if state.te >= n {
		state.te -= n
		return Yellow
	}

	return Red
}

// addSaturating adds delta to v, capping the result at max.
func addSaturating(v, delta, max uint64) uint64 {
	v += delta
	if v > max {
		return max
	}
	return v
}
