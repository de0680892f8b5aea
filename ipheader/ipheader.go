// Package ipheader extracts the two fields the table-action hot path
// needs from an L3 header: the DSCP codepoint and the total packet
// length. Headers are read directly out of caller-owned memory via
// unsafe.Pointer, the same way the teacher's ovsnl package casts raw
// netlink attribute payloads onto Go structs instead of copying them.
package ipheader

import (
	"encoding/binary"
	"unsafe"
)

// ipv4Header mirrors the first 20 bytes of a standard IPv4 header, just
// far enough to reach ToS and TotalLength.
type ipv4Header struct {
	VersionIHL  uint8
	ToS         uint8
	TotalLength uint16 // network byte order
	_           [4]byte // identification, flags, fragment offset
	TTL         uint8
	Protocol    uint8
	_           uint16 // header checksum
	Src         [4]byte
	Dst         [4]byte
}

// ipv6Header mirrors the first 8 bytes of a standard IPv6 header, just far
// enough to reach VTCFlow and PayloadLen.
type ipv6Header struct {
	VTCFlow    uint32 // network byte order
	PayloadLen uint16 // network byte order
	NextHeader uint8
	HopLimit   uint8
}

// sizeofIPv6Header is the fixed IPv6 header length added to PayloadLen to
// obtain the packet's total length (IPv6 has no variable-length header).
const sizeofIPv6Header = 40

// ParseIPv4 reads the DSCP codepoint and total length from an IPv4 header
// at hdr. DSCP is the top 6 bits of the Type of Service byte. No
// validation of IHL, checksum, or truncation is performed: a malformed
// header yields a malformed but well-defined result, per spec.
func ParseIPv4(hdr unsafe.Pointer) (dscp uint8, totalLength uint16) {
	h := (*ipv4Header)(hdr)

	dscp = h.ToS >> 2
	totalLength = binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(&h.TotalLength))[:])
	return dscp, totalLength
}

// ParseIPv6 reads the DSCP codepoint and total length from an IPv6 header
// at hdr. DSCP uses the mask/shift ((vtc_flow & 0x0F600000) >> 18); this
// is not a contiguous 6-bit slice of the traffic class byte, and for
// traffic-class values outside the low byte's DSCP convention the result
// can exceed 63. Callers indexing a 64-entry table by this value must
// mask it down themselves; total length is PayloadLen plus the fixed
// 40-byte IPv6 header size.
func ParseIPv6(hdr unsafe.Pointer) (dscp uint8, totalLength uint16) {
	h := (*ipv6Header)(hdr)

	vtcFlow := binary.BigEndian.Uint32((*[4]byte)(unsafe.Pointer(&h.VTCFlow))[:])
	dscp = uint8((vtcFlow & 0x0F600000) >> 18)

	payloadLen := binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(&h.PayloadLen))[:])
	totalLength = payloadLen + sizeofIPv6Header

	return dscp, totalLength
}
