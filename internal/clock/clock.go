// Package clock samples the monotonic timestamp the hit handler uses to
// advance trTCM meter state. It exists so the hot path samples time
// exactly once per batch, the way rte_rdtsc() is sampled once per batch in
// the DPDK table-action engine this package stands in for.
package clock
