// Package layout defines the packed per-entry action data that the
// tableaction package reads and writes on the table entry's action slice,
// and the profile bookkeeping (offsets, config) used to locate it. The
// struct shapes and bit positions here mirror the C structures of the
// table-action engine this package reimplements, the way the teacher's
// internal/ovsh package restates kernel and DPDK C structures as Go
// structs for unsafe-cast access.
package layout

import (
	"math/bits"
	"unsafe"

	"github.com/packetfwd/go-tableaction/trtcm"
)

// ActionType identifies one of the three actions a profile can enable.
// Values are the action's bit position in ApConfig.ActionMask and its
// index into ApData.Offset; layout computation depends on this ordering.
type ActionType uint

// Recognized ActionType values, in the ascending order freeze uses to
// assign per-entry offsets.
const (
	FWD ActionType = iota
	MTR
	TM

	// NumActionTypes is the number of recognized action types.
	NumActionTypes = 3
)

// String returns the name of t.
func (t ActionType) String() string {
	switch t {
	case FWD:
		return "fwd"
	case MTR:
		return "mtr"
	case TM:
		return "tm"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the recognized action types.
func (t ActionType) Valid() bool {
	return t < NumActionTypes
}

// IPVersion selects the L3 parsing rule the hot path applies.
type IPVersion uint8

// Recognized IPVersion values.
const (
	IPv6 IPVersion = iota
	IPv4
)

// CommonConfig is shared across all action types enabled on a profile: it
// locates the L3 header within a packet's metadata.
type CommonConfig struct {
	IPOffset  uint32
	IPVersion IPVersion
}

// MeterAlg identifies a metering algorithm. Only Trtcm is accepted; Srtcm
// is recognized only so profile.Register can report ENOTSUP for it.
type MeterAlg uint8

// Recognized MeterAlg values.
const (
	Srtcm MeterAlg = iota
	Trtcm
)

func (a MeterAlg) String() string {
	if a == Trtcm {
		return "trtcm"
	}
	return "srtcm"
}

// MtrConfig is the static, per-profile MTR configuration.
type MtrConfig struct {
	Alg             MeterAlg
	NumTC           uint32 // 1 or 4
	NumBytesEnabled bool   // must be false; byte metering is a non-goal
}

// TmConfig is the static, per-profile TM configuration.
type TmConfig struct {
	NumSubportsPerPort uint32 // power of 2, 1..65535
	NumPipesPerSubport uint32 // power of 2, >= 1
}

// PowerOfTwo reports whether n is a nonzero power of two.
func PowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// ApConfig is the frozen, shared configuration copied from a Profile into
// every Action created from it.
type ApConfig struct {
	ActionMask uint64
	Common     CommonConfig
	Mtr        MtrConfig
	Tm         TmConfig
}

// Enabled reports whether t is enabled in the action mask.
func (c *ApConfig) Enabled(t ActionType) bool {
	return c.ActionMask&(1<<uint(t)) != 0
}

// Enable sets t in the action mask.
func (c *ApConfig) Enable(t ActionType) {
	c.ActionMask |= 1 << uint(t)
}

// ApData is the computed per-entry data layout: the byte offset of each
// enabled action's slice within the entry, and the total entry size.
type ApData struct {
	Offset    [NumActionTypes]uint32
	TotalSize uint32
}

// ActionDataSize returns the number of bytes action occupies within an
// entry, given cfg. FWD and TM are a fixed size; MTR is NumTC copies of
// MtrTrtcmData.
func ActionDataSize(action ActionType, cfg *ApConfig) uint32 {
	switch action {
	case FWD:
		return uint32(SizeofFwdData)
	case MTR:
		return cfg.Mtr.NumTC * uint32(SizeofMtrTrtcmData)
	case TM:
		return uint32(SizeofTmData)
	default:
		return 0
	}
}

// ComputeOffsets walks action types in ascending order and assigns each
// enabled one a running offset, exactly as rte_table_action's
// action_data_offset_set does: offsets are a pure function of which
// actions are enabled and their configs, not of registration order.
func ComputeOffsets(cfg *ApConfig) ApData {
	var data ApData

	var offset uint32
	for t := ActionType(0); t < NumActionTypes; t++ {
		if !cfg.Enabled(t) {
			continue
		}

		data.Offset[t] = offset
		offset += ActionDataSize(t, cfg)
	}

	data.TotalSize = offset
	return data
}

// RoundUpPow2 rounds x up to the next power of two. x == 0 returns 0.
func RoundUpPow2(x uint32) uint32 {
	if x == 0 {
		return 0
	}
	if PowerOfTwo(x) {
		return x
	}

	return 1 << bits.Len32(x)
}

// FwdData is the per-entry FWD action state: a forwarding decision that
// maps onto the surrounding pipeline's own dispatch record.
type FwdData struct {
	Action PipelineAction
	ID     uint32 // port id or table id, selected by Action
}

// SizeofFwdData is the size in bytes of FwdData once laid out in an entry.
const SizeofFwdData = 8

// PipelineAction is the dispatch decision an FWD entry carries.
type PipelineAction uint32

// Recognized PipelineAction values.
const (
	PipelineActionDrop PipelineAction = iota
	PipelineActionPort
	PipelineActionTable
	PipelineActionStall
)

// TmData is the per-entry TM action state.
type TmData struct {
	QueueTCColor uint16
	Subport      uint16
	Pipe         uint32
}

// SizeofTmData is the size in bytes of TmData once laid out in an entry.
const SizeofTmData = 8

// DscpEntry is one row of the 64-entry DSCP classification table.
type DscpEntry struct {
	Color        trtcm.Color
	TC           uint16
	QueueTCColor uint16
}

// PackQueueTCColor packs a queue id, traffic class, and color into the
// 16-bit scheduler tag per spec: queue[1:0] | tc[1:0]<<2 | color[1:0]<<4.
func PackQueueTCColor(queue, tc uint16, color trtcm.Color) uint16 {
	return (queue & 0x3) | ((tc & 0x3) << 2) | ((uint16(color) & 0x3) << 4)
}

// DscpTable holds all 64 DSCP entries for one Action.
type DscpTable [64]DscpEntry

// MeterProfileSlot is one slot of an Action's 32-entry meter-profile
// table.
type MeterProfileSlot struct {
	Profile trtcm.Profile
	ID      uint32
	Valid   bool
}

// NumMeterProfiles is the fixed capacity of a meter-profile table.
const NumMeterProfiles = 32

// MeterProfileTable holds all meter profile slots for one Action.
type MeterProfileTable [NumMeterProfiles]MeterProfileSlot

// Find returns the slot holding id, or nil if none is valid and matches.
func (t *MeterProfileTable) Find(id uint32) *MeterProfileSlot {
	for i := range t {
		if t[i].Valid && t[i].ID == id {
			return &t[i]
		}
	}
	return nil
}

// FindUnused returns the first invalid (free) slot, or nil if the table is
// full.
func (t *MeterProfileTable) FindUnused() *MeterProfileSlot {
	for i := range t {
		if !t[i].Valid {
			return &t[i]
		}
	}
	return nil
}

// SlotIndex returns the index of slot within t. slot must point into t,
// as returned by Find or FindUnused.
func (t *MeterProfileTable) SlotIndex(slot *MeterProfileSlot) uint32 {
	delta := uintptr(unsafe.Pointer(slot)) - uintptr(unsafe.Pointer(&t[0]))
	return uint32(delta / unsafe.Sizeof(t[0]))
}

// MtrTrtcmData is the per-entry, per-traffic-class meter state: a trTCM
// bucket state plus three stat words (one per color) that multiplex the
// policer policy, a profile index, and a 56-bit packet counter. Bit
// positions within each word are preserved exactly from the engine this
// package reimplements, since they're part of the documented memory-image
// contract (spec.md §9):
//
//	bits [1:0]: policer recolor target for this color
//	bit  2:     policer drop flag for this color
//	bits [7:3]: meter profile index (Green word only)
//	bits [63:8]: packet counter for this color
type MtrTrtcmData struct {
	Trtcm trtcm.State
	Stats [3]uint64
}

// SizeofMtrTrtcmData is the size in bytes of one MtrTrtcmData.
const SizeofMtrTrtcmData = 48

// ProfileIndex returns the meter-profile table index encoded in the Green
// word.
func (d *MtrTrtcmData) ProfileIndex() uint32 {
	return uint32(d.Stats[trtcm.Green]&0xF8) >> 3
}

// SetProfileIndex encodes idx (0..31) into the Green word, preserving all
// other bits of that word.
func (d *MtrTrtcmData) SetProfileIndex(idx uint32) {
	d.Stats[trtcm.Green] &^= 0xF8
	d.Stats[trtcm.Green] |= uint64(idx%NumMeterProfiles) << 3
}

// PolicerDrop reports whether the policer drops packets metered to color.
func (d *MtrTrtcmData) PolicerDrop(color trtcm.Color) bool {
	return d.Stats[color]&0x4 != 0
}

// PolicerTarget returns the recolor target for packets metered to color.
// It is only meaningful when PolicerDrop(color) is false.
func (d *MtrTrtcmData) PolicerTarget(color trtcm.Color) trtcm.Color {
	return trtcm.Color(d.Stats[color] & 0x3)
}

// SetPolicerAction encodes the policer's behavior for packets metered to
// color: if drop is true it sets the drop flag and leaves the recolor bits
// as they are; otherwise it clears the drop flag and stores target as the
// recolor target.
func (d *MtrTrtcmData) SetPolicerAction(color trtcm.Color, drop bool, target trtcm.Color) {
	if drop {
		d.Stats[color] |= 0x4
		return
	}

	d.Stats[color] &^= 0x7
	d.Stats[color] |= uint64(target) & 0x3
}

// StatsGet returns the 56-bit packet counter for color.
func (d *MtrTrtcmData) StatsGet(color trtcm.Color) uint64 {
	return d.Stats[color] >> 8
}

// StatsInc increments the packet counter for color by one, without
// touching the policer/profile-index bits below bit 8. The counter wraps
// silently past 56 bits; see DESIGN.md for why that's the documented
// choice rather than saturation.
func (d *MtrTrtcmData) StatsInc(color trtcm.Color) {
	d.Stats[color] += 1 << 8
}

// StatsReset zeroes the packet counter for color, preserving the
// policer/profile-index bits in the low byte.
func (d *MtrTrtcmData) StatsReset(color trtcm.Color) {
	d.Stats[color] &= 0xFF
}
