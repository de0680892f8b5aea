package tableaction

import (
	"unsafe"

	"github.com/packetfwd/go-tableaction/layout"
	"github.com/packetfwd/go-tableaction/trtcm"
)

// PolicerAction is the per-color policer policy an MTR entry can be
// configured with: recolor to one of the three colors, or drop.
type PolicerAction uint8

// Recognized PolicerAction values.
const (
	PolicerGreen PolicerAction = iota
	PolicerYellow
	PolicerRed
	PolicerDrop
)

func (a PolicerAction) String() string {
	switch a {
	case PolicerGreen:
		return "green"
	case PolicerYellow:
		return "yellow"
	case PolicerRed:
		return "red"
	case PolicerDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// FwdParams configures the FWD action on one entry.
type FwdParams struct {
	Action layout.PipelineAction
	ID     uint32 // meaningful when Action is Port or Table.
}

// MtrTCParams configures the MTR action for a single traffic class.
type MtrTCParams struct {
	MeterProfileID uint32
	// Policer is indexed by the meter's output color (trtcm.Green,
	// trtcm.Yellow, trtcm.Red) and gives the policer action to take for
	// packets metered to that color.
	Policer [3]PolicerAction
}

// MtrParams configures the MTR action on one entry. TCMask selects which
// of the (up to 4) traffic classes TC holds configuration for.
type MtrParams struct {
	TCMask uint32
	TC     [4]MtrTCParams
}

// TmParams configures the TM action on one entry.
type TmParams struct {
	SubportID uint32
	PipeID    uint32
}

// MeterProfileParams describes a trTCM meter profile to install via
// MeterProfileAdd.
type MeterProfileParams struct {
	Alg   MeterAlg
	Trtcm trtcm.Profile
}

// DscpTableEntry is one caller-supplied row of a DSCP table update.
type DscpTableEntry struct {
	Color     trtcm.Color
	TC        uint16
	TCQueueID uint16
}

// MtrCountersTC holds one traffic class's packet counters as read back by
// MeterRead.
type MtrCountersTC struct {
	NPackets      [3]uint64 // indexed by trtcm.Color
	NPacketsValid bool
	NBytesValid   bool // always false: this engine is packet-count only.
}

// MtrCounters holds the counters read back by MeterRead across a tc_mask.
type MtrCounters struct {
	TCMask uint32
	Stats  [4]MtrCountersTC
}

// HitHandler is the per-batch hot-path entry point a pipeline installs
// for a table whose action profile enables more than just FWD. action is
// the TableParams.UserArg the pipeline was handed at setup time. It
// returns a bitmask (same indexing as pktsMask) of packets to drop.
type HitHandler func(action *Action, pkts []Packet, pktsMask uint64, entries [][]byte) uint64

// TableParams is returned by TableParamsGet: what a pipeline needs to
// install in order to drive this Action's hot path.
type TableParams struct {
	Handler        HitHandler // nil if only FWD is enabled.
	UserArg        *Action    // nil iff Handler is nil.
	ActionDataSize uint32
}

// An Action is the runtime instance created from a frozen Profile. It
// owns a DSCP table and a meter-profile table, and exposes the
// control-plane apply/update calls plus the hot-path HitHandler. An
// Action is driven by exactly one data-plane goroutine and has no
// internal locking.
type Action struct {
	cfg  layout.ApConfig
	data layout.ApData

	dscp layout.DscpTable
	mp   layout.MeterProfileTable
}

// ActionCreate builds an Action from a frozen profile. localityHint is
// accepted for API parity with the NUMA-aware engine this package
// reimplements but is otherwise unused: memory placement is out of scope
// here (see spec.md §1).
func ActionCreate(profile *Profile, localityHint uint32) (*Action, error) {
	if profile == nil || !profile.frozen {
		return nil, errorf(EBUSY, "profile must be frozen before creating an action")
	}

	return &Action{
		cfg:  profile.cfg,
		data: profile.data,
	}, nil
}

// Free is a no-op kept for parity with the control surface this package
// models. Free is nil-receiver-safe and idempotent.
func (a *Action) Free() {}

// entrySlice returns the byte range of entryData belonging to action type
// t, per the profile's precomputed offset and size.
func (a *Action) entrySlice(entryData []byte, t ActionType) []byte {
	off := a.data.Offset[t]
	size := layout.ActionDataSize(t, &a.cfg)
	return entryData[off : off+size]
}

// Apply writes the configuration for action type t into entryData, which
// must be at least as large as the TableParamsGet action_data_size for
// this Action. Apply fails with EINVAL if t is not enabled on this
// Action's profile.
func (a *Action) Apply(entryData []byte, t ActionType, params interface{}) error {
	if !a.cfg.Enabled(t) {
		return errorf(EINVAL, "action type %v not enabled", t)
	}

	switch t {
	case FWD:
		p, ok := params.(*FwdParams)
		if !ok || p == nil {
			return errorf(EINVAL, "FWD requires *FwdParams")
		}
		return a.applyFwd(entryData, p)

	case MTR:
		p, ok := params.(*MtrParams)
		if !ok || p == nil {
			return errorf(EINVAL, "MTR requires *MtrParams")
		}
		return a.applyMtr(entryData, p)

	case TM:
		p, ok := params.(*TmParams)
		if !ok || p == nil {
			return errorf(EINVAL, "TM requires *TmParams")
		}
		return a.applyTm(entryData, p)

	default:
		return errorf(EINVAL, "unknown action type %v", t)
	}
}

func (a *Action) applyFwd(entryData []byte, p *FwdParams) error {
	data := fwdData(a.entrySlice(entryData, FWD))
	data.Action = p.Action
	if p.Action == layout.PipelineActionPort || p.Action == layout.PipelineActionTable {
		data.ID = p.ID
	}
	return nil
}

// applyMtr validates every referenced meter profile before writing
// anything: if any tc_mask bit references a missing profile, the entire
// call fails and the entry's meter state is left untouched.
func (a *Action) applyMtr(entryData []byte, p *MtrParams) error {
	if p.TCMask >= 1<<a.cfg.Mtr.NumTC {
		return errorf(EINVAL, "tc_mask %#x exceeds n_tc=%d", p.TCMask, a.cfg.Mtr.NumTC)
	}

	resolved := [4]*layout.MeterProfileSlot{}
	for i := uint32(0); i < 4; i++ {
		if p.TCMask&(1<<i) == 0 {
			continue
		}

		slot := a.mp.Find(p.TC[i].MeterProfileID)
		if slot == nil {
			return errorf(EINVAL, "meter profile %d not found for tc %d", p.TC[i].MeterProfileID, i)
		}
		resolved[i] = slot
	}

	tc := mtrData(a.entrySlice(entryData, MTR))
	for i := uint32(0); i < 4; i++ {
		if p.TCMask&(1<<i) == 0 {
			continue
		}

		slot := resolved[i]
		tcData := &tc[i]
		*tcData = layout.MtrTrtcmData{}

		trtcm.Config(&tcData.Trtcm, &slot.Profile)
		tcData.SetProfileIndex(a.mp.SlotIndex(slot))

		for _, color := range [3]trtcm.Color{trtcm.Green, trtcm.Yellow, trtcm.Red} {
			action := p.TC[i].Policer[color]
			if action == PolicerDrop {
				tcData.SetPolicerAction(color, true, trtcm.Green)
			} else {
				tcData.SetPolicerAction(color, false, trtcm.Color(action))
			}
		}
	}

	return nil
}

func (a *Action) applyTm(entryData []byte, p *TmParams) error {
	if p.SubportID >= a.cfg.Tm.NumSubportsPerPort {
		return errorf(EINVAL, "subport_id %d >= n_subports_per_port %d", p.SubportID, a.cfg.Tm.NumSubportsPerPort)
	}
	if p.PipeID >= a.cfg.Tm.NumPipesPerSubport {
		return errorf(EINVAL, "pipe_id %d >= n_pipes_per_subport %d", p.PipeID, a.cfg.Tm.NumPipesPerSubport)
	}

	data := tmData(a.entrySlice(entryData, TM))
	data.QueueTCColor = 0
	data.Subport = uint16(p.SubportID)
	data.Pipe = p.PipeID

	return nil
}

// MeterProfileAdd installs profile under id. It fails with ENOTSUP if
// profile.Alg isn't Trtcm, EEXIST if id is already installed, and ENOSPC
// if the 32-slot meter-profile table is full.
func (a *Action) MeterProfileAdd(id uint32, profile *MeterProfileParams) error {
	if !a.cfg.Enabled(MTR) {
		return errorf(EINVAL, "MTR not enabled on this action")
	}
	if profile.Alg != Trtcm {
		return errorf(ENOTSUP, "meter algorithm %v not supported, only trtcm", profile.Alg)
	}
	if a.mp.Find(id) != nil {
		return errorf(EEXIST, "meter profile %d already exists", id)
	}

	slot := a.mp.FindUnused()
	if slot == nil {
		return errorf(ENOSPC, "meter profile table is full (%d slots)", layout.NumMeterProfiles)
	}

	slot.Profile = profile.Trtcm
	slot.ID = id
	slot.Valid = true

	return nil
}

// MeterProfileDelete invalidates the slot holding id. It is a no-op if id
// is not present. Per spec.md §4.2/§9, per-entry references to a deleted
// slot are not scrubbed; callers must quiesce or reconfigure entries
// before deleting a profile still in use.
func (a *Action) MeterProfileDelete(id uint32) error {
	if !a.cfg.Enabled(MTR) {
		return errorf(EINVAL, "MTR not enabled on this action")
	}

	slot := a.mp.Find(id)
	if slot == nil {
		return nil
	}

	slot.Valid = false
	return nil
}

// DscpTableUpdate writes table[i] into the DSCP table for every bit i set
// in mask. Requires MTR or TM to be enabled. Each entry is written with a
// plain struct assignment, which is not an atomic store; nothing here
// synchronizes with a concurrent HitHandler.
func (a *Action) DscpTableUpdate(mask uint64, table *[64]DscpTableEntry) error {
	if !a.cfg.Enabled(MTR) && !a.cfg.Enabled(TM) {
		return errorf(EINVAL, "neither MTR nor TM is enabled on this action")
	}

	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}

		entry := table[i]
		a.dscp[i] = layout.DscpEntry{
			Color:        entry.Color,
			TC:           entry.TC,
			QueueTCColor: layout.PackQueueTCColor(entry.TCQueueID, entry.TC, entry.Color),
		}
	}

	return nil
}

// MeterRead reads the per-(TC,color) packet counters for every TC bit set
// in tcMask out of entryData into stats, if non-nil, then clears those
// counters if clear is true. Byte counts are always reported invalid:
// this engine is packet-count only.
func (a *Action) MeterRead(entryData []byte, tcMask uint32, stats *MtrCounters, clear bool) error {
	if !a.cfg.Enabled(MTR) {
		return errorf(EINVAL, "MTR not enabled on this action")
	}
	if tcMask >= 1<<a.cfg.Mtr.NumTC {
		return errorf(EINVAL, "tc_mask %#x exceeds n_tc=%d", tcMask, a.cfg.Mtr.NumTC)
	}

	tc := mtrData(a.entrySlice(entryData, MTR))

	if stats != nil {
		for i := uint32(0); i < 4; i++ {
			if tcMask&(1<<i) == 0 {
				continue
			}

			src := &tc[i]
			stats.Stats[i] = MtrCountersTC{
				NPackets: [3]uint64{
					src.StatsGet(trtcm.Green),
					src.StatsGet(trtcm.Yellow),
					src.StatsGet(trtcm.Red),
				},
				NPacketsValid: true,
				NBytesValid:   false,
			}
		}
		stats.TCMask = tcMask
	}

	if clear {
		for i := uint32(0); i < 4; i++ {
			if tcMask&(1<<i) == 0 {
				continue
			}

			src := &tc[i]
			src.StatsReset(trtcm.Green)
			src.StatsReset(trtcm.Yellow)
			src.StatsReset(trtcm.Red)
		}
	}

	return nil
}

// TableParamsGet returns what a pipeline needs to install in order to
// drive this Action. Handler is nil iff only FWD is enabled, since a
// pipeline performs the trivial FWD dispatch itself without calling back
// into this package.
func (a *Action) TableParamsGet() (TableParams, error) {
	total := layout.RoundUpPow2(a.data.TotalSize)

	params := TableParams{
		ActionDataSize: total - sizeofPipelineHeader,
	}

	if a.cfg.ActionMask != 1<<uint(FWD) {
		params.Handler = defaultHitHandler
		params.UserArg = a
	}

	return params, nil
}

// sizeofPipelineHeader is the size of the pipeline-owned header that
// precedes the action data this package describes within a table entry.
// The pipeline itself is out of scope (spec.md §1); this constant mirrors
// DPDK's rte_pipeline_table_entry, which holds nothing beyond the action
// data this package already accounts for elsewhere, so it is zero here.
const sizeofPipelineHeader = 0

// fwdData reinterprets the FWD slice of an entry as *layout.FwdData.
func fwdData(b []byte) *layout.FwdData {
	return (*layout.FwdData)(unsafe.Pointer(&b[0]))
}

// tmData reinterprets the TM slice of an entry as *layout.TmData.
func tmData(b []byte) *layout.TmData {
	return (*layout.TmData)(unsafe.Pointer(&b[0]))
}

// mtrData reinterprets the MTR slice of an entry as a []layout.MtrTrtcmData
// with one element per traffic class.
func mtrData(b []byte) []layout.MtrTrtcmData {
	n := len(b) / layout.SizeofMtrTrtcmData
	return unsafe.Slice((*layout.MtrTrtcmData)(unsafe.Pointer(&b[0])), n)
}
