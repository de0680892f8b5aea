// Package tableaction implements a pipeline table-action engine: given a
// profile describing which actions a classification table supports, it
// computes a per-entry data layout, then provides the runtime Action
// object that applies configuration to entries and executes the hot-path
// packet processor (FWD dispatch, MTR metering/policing, TM scheduler
// tagging) that a matched table entry drives.
package tableaction

import (
	"github.com/packetfwd/go-tableaction/layout"
)

// ActionType identifies one of the three actions a Profile can enable.
type ActionType = layout.ActionType

// Recognized ActionType values.
const (
	FWD = layout.FWD
	MTR = layout.MTR
	TM  = layout.TM
)

// IPVersion selects which L3 parsing rule the hot path applies.
type IPVersion = layout.IPVersion

// Recognized IPVersion values.
const (
	IPv4 = layout.IPv4
	IPv6 = layout.IPv6
)

// CommonConfig is shared across every action enabled on a Profile.
type CommonConfig = layout.CommonConfig

// MtrConfig is the static, per-profile MTR configuration.
type MtrConfig = layout.MtrConfig

// TmConfig is the static, per-profile TM configuration.
type TmConfig = layout.TmConfig

// MeterAlg identifies a metering algorithm.
type MeterAlg = layout.MeterAlg

// Recognized MeterAlg values.
const (
	Trtcm = layout.Trtcm
	Srtcm = layout.Srtcm
)

// A Profile describes which actions a table supports and their static
// configuration. It is built mutably via Register calls, then Freeze
// computes the per-entry byte layout and makes it immutable.
//
// The zero value is not usable; construct with ProfileCreate.
type Profile struct {
	cfg    layout.ApConfig
	data   layout.ApData
	frozen bool
}

// ProfileCreate creates a new, unfrozen Profile with no actions enabled.
func ProfileCreate(common CommonConfig) *Profile {
	return &Profile{
		cfg: layout.ApConfig{Common: common},
	}
}

// Register enables action type t on profile with the given static
// configuration. cfg must be an *MtrConfig for MTR, a *TmConfig for TM,
// and nil for FWD; any other combination returns EINVAL. Register fails
// with EBUSY if the profile is already frozen, EINVAL if t is unknown or
// already registered, and ENOTSUP if the action's configuration violates
// this package's constraints (see MTR/TM validation below).
func (p *Profile) Register(t ActionType, cfg interface{}) error {
	if p.frozen {
		return errorf(EBUSY, "profile already frozen")
	}
	if !t.Valid() {
		return errorf(EINVAL, "unknown action type %v", t)
	}
	if p.cfg.Enabled(t) {
		return errorf(EINVAL, "action type %v already registered", t)
	}

	switch t {
	case FWD:
		if cfg != nil {
			return errorf(EINVAL, "FWD takes no configuration")
		}
		p.cfg.Enable(FWD)
		return nil

	case MTR:
		mtr, ok := cfg.(*MtrConfig)
		if !ok || mtr == nil {
			return errorf(EINVAL, "MTR requires a non-nil *MtrConfig")
		}
		if err := checkMtrConfig(mtr); err != nil {
			return err
		}
		p.cfg.Mtr = *mtr
		p.cfg.Enable(MTR)
		return nil

	case TM:
		tm, ok := cfg.(*TmConfig)
		if !ok || tm == nil {
			return errorf(EINVAL, "TM requires a non-nil *TmConfig")
		}
		if err := checkTmConfig(tm); err != nil {
			return err
		}
		p.cfg.Tm = *tm
		p.cfg.Enable(TM)
		return nil

	default:
		return errorf(EINVAL, "unknown action type %v", t)
	}
}

// checkMtrConfig validates an MTR configuration against spec: only TRTCM,
// only 1 or 4 traffic classes, and byte metering must be disabled.
func checkMtrConfig(cfg *MtrConfig) error {
	if cfg.Alg != Trtcm {
		return errorf(ENOTSUP, "meter algorithm %v not supported, only trtcm", cfg.Alg)
	}
	if cfg.NumTC != 1 && cfg.NumTC != 4 {
		return errorf(ENOTSUP, "n_tc must be 1 or 4, got %d", cfg.NumTC)
	}
	if cfg.NumBytesEnabled {
		return errorf(ENOTSUP, "byte-based metering is not supported")
	}
	return nil
}

// checkTmConfig validates a TM configuration against spec: subport and
// pipe counts must each be a nonzero power of two, and subport count must
// fit in 16 bits.
func checkTmConfig(cfg *TmConfig) error {
	if cfg.NumSubportsPerPort == 0 || !layout.PowerOfTwo(cfg.NumSubportsPerPort) || cfg.NumSubportsPerPort > 65535 {
		return errorf(ENOTSUP, "n_subports_per_port must be a power of two <= 65535, got %d", cfg.NumSubportsPerPort)
	}
	if cfg.NumPipesPerSubport == 0 || !layout.PowerOfTwo(cfg.NumPipesPerSubport) {
		return errorf(ENOTSUP, "n_pipes_per_subport must be a power of two, got %d", cfg.NumPipesPerSubport)
	}
	return nil
}

// Freeze implicitly enables FWD, computes the per-entry offset of every
// enabled action in ascending action-type order, and makes the profile
// immutable. Freeze fails with EBUSY if called twice.
func (p *Profile) Freeze() error {
	if p.frozen {
		return errorf(EBUSY, "profile already frozen")
	}

	p.cfg.Enable(FWD)
	p.data = layout.ComputeOffsets(&p.cfg)
	p.frozen = true

	return nil
}

// Frozen reports whether p has been frozen.
func (p *Profile) Frozen() bool {
	return p != nil && p.frozen
}

// Free is a no-op kept for parity with the control surface this package
// models; Go's garbage collector reclaims a Profile once unreferenced.
// Free is nil-receiver-safe and idempotent.
func (p *Profile) Free() {}
