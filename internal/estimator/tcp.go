// Package estimator implements the per-protocol RTT estimators. Each
// estimator updates the state embedded in the session and returns a fresh
// RTT sample when one was taken.
package estimator

import "firestige.xyz/spindle/internal/flow"

// VEC bit layout inside the 3-bit field extracted from the TCP reserved
// area: spin | edge | valid.
const (
	vecValid = 0x01
	vecEdge  = 0x02
	vecSpin  = 0x04
)

// TCPInput carries the per-packet inputs for the TCP estimator.
type TCPInput struct {
	SrcPort uint16
	VEC     uint8
	TSVal   uint32
	TSEcr   uint32
	HasTS   bool
	Seq     uint32
}

// TCP runs VEC-spin and timestamp-echo estimation for one packet.
//
// VEC: the forward endpoint flips the spin bit once per RTT; the flip is
// flagged with the edge bit and only trusted when the valid bit is set. The
// forward edge timestamp is recorded and the RTT sampled when the reverse
// direction reflects the new spin value.
//
// Timestamps: on forward, the latest tsval and its send time are recorded;
// on reverse, a tsecr equal to the recorded tsval closes the sample.
func TCP(s *flow.Session, now float64, in TCPInput) (float64, bool) {
	st := &s.TCP
	spin := (in.VEC & vecSpin) >> 2
	valid := in.VEC&vecValid != 0
	edge := in.VEC&vecEdge != 0

	if s.Forward(in.SrcPort) {
		st.LastSeq = in.Seq
		if in.HasTS {
			st.FwdTSVal = in.TSVal
			st.FwdTSTime = now
			st.TSRecorded = true
		}
		if valid && (edge || spin != st.FwdSpin) && st.FwdSpin != flow.NoSpin {
			st.EdgeTime = now
		}
		if st.FwdSpin == flow.NoSpin {
			st.EdgeTime = now
		}
		st.FwdSpin = spin
		return 0, false
	}

	// Reverse direction.
	sampled := false
	var rtt float64
	if in.HasTS && st.TSRecorded && in.TSEcr == st.FwdTSVal {
		rtt = now - st.FwdTSTime
		st.RevTSEcr = in.TSEcr
		st.LastRTT = rtt
		st.TSRecorded = false
		sampled = true
	}
	if valid && spin == st.FwdSpin && spin != st.RevSpin && st.FwdSpin != flow.NoSpin {
		rtt = now - st.EdgeTime
		st.LastRTT = rtt
		sampled = true
	}
	st.RevSpin = spin
	return rtt, sampled
}
