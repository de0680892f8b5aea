package tableaction

import (
	"math/bits"

	"github.com/packetfwd/go-tableaction/internal/clock"
	"github.com/packetfwd/go-tableaction/ipheader"
	"github.com/packetfwd/go-tableaction/layout"
	"github.com/packetfwd/go-tableaction/trtcm"
)

// schedColorMask selects bits [5:4] of a scheduler word, the two bits MTR
// policing is allowed to touch; pktWorkMtr clears them with &^ before
// merging in the policer color.
const schedColorMask = 0x30

// dscpTableMask keeps a DSCP index within the 64-entry table. The IPv6
// extraction formula in ipheader.ParseIPv6 is not a clean 6-bit field for
// arbitrary traffic-class bytes, so indexing by it directly could run off
// the end of the table and panic. The C original performs no such check.
const dscpTableMask = 0x3F

// pktWork runs the per-packet hot path: decode the L3 header, advance
// meter state and police if MTR is enabled, tag the scheduler field if TM
// is enabled. It returns 1 if the packet should be dropped, 0 otherwise.
func pktWork(pkt Packet, entryData []byte, time uint64, action *Action) uint64 {
	hdr := pkt.L3Header(action.cfg.Common.IPOffset)

	var dscp uint8
	var totalLength uint16
	if action.cfg.Common.IPVersion == layout.IPv4 {
		dscp, totalLength = ipheader.ParseIPv4(hdr)
	} else {
		dscp, totalLength = ipheader.ParseIPv6(hdr)
	}

	var dropMask uint64

	if action.cfg.Enabled(MTR) {
		dropMask |= pktWorkMtr(pkt, action.entrySlice(entryData, MTR), action, time, dscp, totalLength)
	}

	if action.cfg.Enabled(TM) {
		pktWorkTm(pkt, action.entrySlice(entryData, TM), action, dscp)
	}

	return dropMask
}

// pktWorkMtr implements the MTR half of pktWork.
func pktWorkMtr(pkt Packet, mtrEntry []byte, action *Action, time uint64, dscp uint8, totalLength uint16) uint64 {
	dscpEntry := &action.dscp[dscp&dscpTableMask]
	tc := mtrData(mtrEntry)
	data := &tc[dscpEntry.TC]

	profile := &action.mp[data.ProfileIndex()].Profile

	meterColor := trtcm.ColorAwareCheck(&data.Trtcm, profile, time, uint32(totalLength), dscpEntry.Color)
	data.StatsInc(meterColor)

	drop := data.PolicerDrop(meterColor)
	target := data.PolicerTarget(meterColor)

	sched := pkt.Sched()
	sched = (sched &^ schedColorMask) | (uint64(target) << 4)
	pkt.SetSched(sched)

	if drop {
		return 1
	}
	return 0
}

// pktWorkTm implements the TM half of pktWork: it copies the entry's
// subport/pipe and the freshly looked-up queue_tc_color into the packet's
// scheduler field in one store.
func pktWorkTm(pkt Packet, tmEntry []byte, action *Action, dscp uint8) {
	dscpEntry := &action.dscp[dscp&dscpTableMask]
	data := tmData(tmEntry)

	word := uint64(dscpEntry.QueueTCColor) | uint64(data.Subport)<<16 | uint64(data.Pipe)<<32
	pkt.SetSched(word)
}

// pkt4Work runs pktWork across four packets with a plain loop of four
// pktWork calls, so its per-packet results are identical to the scalar
// path; see spec.md §9's design note.
func pkt4Work(pkts []Packet, entries [][]byte, time uint64, action *Action) uint64 {
	var drop [4]uint64
	for i := 0; i < 4; i++ {
		drop[i] = pktWork(pkts[i], entries[i], time, action)
	}

	return drop[0] | drop[1]<<1 | drop[2]<<2 | drop[3]<<3
}

// HitHandler runs the hot path over one batch: pkts[i]/entries[i] are
// valid iff bit i of pktsMask is set. It returns a drop mask with the same
// bit indexing as pktsMask.
func (a *Action) HitHandler(pkts []Packet, pktsMask uint64, entries [][]byte) uint64 {
	var time uint64
	if a.cfg.Enabled(MTR) {
		time = clock.Now()
	}

	var dropMask uint64

	if pktsMask&(pktsMask+1) == 0 {
		// Dense 0..n-1 prefix: process in groups of four, then the tail.
		n := bits.OnesCount64(pktsMask)

		i := 0
		for ; i+4 <= n; i += 4 {
			d := pkt4Work(pkts[i:i+4], entries[i:i+4], time, a)
			dropMask |= d << uint(i)
		}

		for ; i < n; i++ {
			d := pktWork(pkts[i], entries[i], time, a)
			dropMask |= d << uint(i)
		}
	} else {
		mask := pktsMask
		for mask != 0 {
			pos := bits.TrailingZeros64(mask)
			bit := uint64(1) << uint(pos)

			d := pktWork(pkts[pos], entries[pos], time, a)
			dropMask |= d << uint(pos)

			mask &^= bit
		}
	}

	return dropMask
}

// defaultHitHandler adapts (*Action).HitHandler to the HitHandler function
// type so it can be returned from TableParamsGet as a plain function
// value, the way rte_table_action_table_params_get hands back a function
// pointer plus an opaque arg rather than a bound closure.
func defaultHitHandler(action *Action, pkts []Packet, pktsMask uint64, entries [][]byte) uint64 {
	return action.HitHandler(pkts, pktsMask, entries)
}
