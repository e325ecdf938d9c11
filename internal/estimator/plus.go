package estimator

import "firestige.xyz/spindle/internal/flow"

// PLUSInput carries the per-packet inputs for the PLUS estimator.
type PLUSInput struct {
	SrcPort uint16
	PSN     uint32
	PSE     uint32
}

// PLUS runs PSN/PSE estimation for one packet. PSN is a per-sender monotonic
// serial number and PSE echoes the last-seen peer PSN, so the pair behaves
// like an explicit SEQ/ACK: the send time of the latest forward PSN is
// recorded and a reverse packet echoing it in PSE closes the sample.
func PLUS(s *flow.Session, now float64, in PLUSInput) (float64, bool) {
	st := &s.PLUS

	if s.Forward(in.SrcPort) {
		st.FwdPSN = in.PSN
		st.FwdTime = now
		st.PSNPending = true
		return 0, false
	}

	if st.PSNPending && in.PSE == st.FwdPSN {
		rtt := now - st.FwdTime
		st.RevPSE = in.PSE
		st.LastRTT = rtt
		st.PSNPending = false
		return rtt, true
	}
	st.RevPSE = in.PSE
	return 0, false
}
