package tableaction

import "unsafe"

// Packet is the minimal view this package needs of a packet buffer owned
// by the surrounding pipeline. It stands in for the opaque packet buffer
// spec.md §1 describes as an external collaborator: an accessor returning
// an L3 header pointer, and a single writable 64-bit "scheduler" field.
type Packet interface {
	// L3Header returns a pointer to the packet's metadata at offset, which
	// the hit handler reinterprets as an IPv4 or IPv6 header per the
	// Action's CommonConfig.IPVersion.
	L3Header(offset uint32) unsafe.Pointer

	// Sched returns the current value of the packet's 64-bit scheduler
	// field.
	Sched() uint64

	// SetSched overwrites the packet's 64-bit scheduler field.
	SetSched(v uint64)
}
