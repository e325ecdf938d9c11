package estimator

import "firestige.xyz/spindle/internal/flow"

// spinBit is the spin signal inside the dedicated measurement byte. The
// target is the early draft-05 wire image, where measurement data occupies
// its own byte after the packet number; later drafts moved the spin bit into
// the first header byte and must not be silently assumed here.
const spinBit = 0x01

// QUICInput carries the per-packet inputs for the QUIC estimator.
type QUICInput struct {
	SrcPort     uint16
	Measurement uint8
	PktNum      uint32
}

// QUIC runs spin-bit estimation for one packet. The last spin value per
// direction is tracked together with the time of the last forward spin
// transition; when the reverse direction reflects the new value, the elapsed
// time since that transition is one RTT. Packets whose number does not
// exceed the direction's high-water mark are reordered and ignored.
func QUIC(s *flow.Session, now float64, in QUICInput) (float64, bool) {
	st := &s.QUIC
	spin := in.Measurement & spinBit

	if s.Forward(in.SrcPort) {
		if st.FwdSpin != flow.NoSpin && in.PktNum <= st.FwdPktNum {
			return 0, false
		}
		st.FwdPktNum = in.PktNum
		if spin != st.FwdSpin {
			st.EdgeTime = now
		}
		st.FwdSpin = spin
		return 0, false
	}

	if st.RevSpin != flow.NoSpin && in.PktNum <= st.RevPktNum {
		return 0, false
	}
	st.RevPktNum = in.PktNum

	sampled := false
	var rtt float64
	if spin != st.RevSpin && spin == st.FwdSpin && st.FwdSpin != flow.NoSpin {
		rtt = now - st.EdgeTime
		st.LastRTT = rtt
		sampled = true
	}
	st.RevSpin = spin
	return rtt, sampled
}
