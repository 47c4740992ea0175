// Constants
package internal

// Universal failure sentinel for raw completion results. Every operation kind
// reports failure as -1 with the errno carried out-of-band. We keep the single
// sentinel even for kinds whose legitimate result could in principle go
// negative (see DESIGN.md).
const FAIL = int64(-1)

const MS_PER_SEC = 1000

// Address family discriminants carried on peer addresses of stream events.
const FAMILY_IPV4 = "IPv4"
const FAMILY_IPV6 = "IPv6"

// Per-worker scratch size - enough for a readlink target or one getdents batch
const SCRATCH_LEN = 0x10000
