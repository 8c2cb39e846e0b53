package domain

// RoutingTable is the (offset, overrides, salt) triple parsed from the
// site's gg.js endpoint. Salt and offset are always observed together
// from the same fetch, per the invariant in §3.
type RoutingTable struct {
	DefaultSubdomainOffset int
	Overrides              map[int]int
	PathSalt               string
}
