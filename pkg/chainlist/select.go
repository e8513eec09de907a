package chainlist

// SelectBaseRPCSet builds the candidate RPC set for a handler: injected RPCs
// first (localhost, anvil, private nodes), then directory RPCs that pass the
// tracking preference. An RPC without a tracking classification is treated as
// acceptable under Limited but not under None.
func (c *Catalog) SelectBaseRPCSet(id NetworkID, tracking Tracking, injected []Rpc) []Rpc {
	rpcs := make([]Rpc, 0, len(injected))
	rpcs = append(rpcs, injected...)

	for _, rpc := range c.ExtraRPCs(id) {
		if allowedByTracking(tracking, rpc.Tracking) {
			rpcs = append(rpcs, rpc)
		}
	}
	return rpcs
}

func allowedByTracking(pref, got Tracking) bool {
	switch pref {
	case TrackingYes:
		return true
	case TrackingNone:
		return got == TrackingNone
	default: // Limited is the default preference
		return got == TrackingLimited || got == TrackingNone || got == ""
	}
}
