package flow

import "firestige.xyz/spindle/internal/core"

// State is the session lifecycle state. The timer is only re-armed for
// ACTIVE sessions; an ERROR session keeps its current deadline and ages out.
type State uint8

const (
	StateActive State = iota
	StateError
)

// NoSpin marks a spin value as not yet observed.
const NoSpin = 0xff

// TCPState is the estimator state for a TCP session: VEC spin signaling from
// the reserved header bits plus the timestamp option echo.
type TCPState struct {
	FwdSpin  uint8 // last spin seen in forward direction, NoSpin before first
	RevSpin  uint8
	EdgeTime float64 // time of the last forward spin transition

	FwdTSVal   uint32 // last forward tsval and its send time
	FwdTSTime  float64
	TSRecorded bool // FwdTSVal has been recorded and not yet echoed
	RevTSEcr   uint32
	LastSeq    uint32
	LastRTT    float64
}

// QUICState is the estimator state for a QUIC session.
type QUICState struct {
	ID        uint64 // connection ID from the first packet, 0 if absent
	FwdSpin   uint8  // NoSpin before first observation
	RevSpin   uint8
	FwdPktNum uint32 // highest packet number seen per direction
	RevPktNum uint32
	EdgeTime  float64
	LastRTT   float64
}

// PLUSState is the estimator state for a PLUS session.
type PLUSState struct {
	CAT        uint64
	FwdPSN     uint32 // last forward PSN and its send time
	FwdTime    float64
	PSNPending bool // a forward PSN has been recorded and not yet echoed
	RevPSE     uint32
	LastRTT    float64
}

// Session is the per-flow record. Created on the first observed packet of a
// flow, destroyed by timer expiry. InitSrcIP, InitSrcPort, OrigDstIP and
// NewDstIP are frozen at creation.
type Session struct {
	Index   uint32
	Variant core.Variant
	State   State

	Key        uint64
	KeyReverse uint64

	InitSrcPort uint16
	InitSrcIP   uint32
	OrigDstIP   uint32 // the destination the initiator addressed
	NewDstIP    uint32 // the backend this flow was bound to

	PktCount uint32

	TCP  TCPState
	QUIC QUICState
	PLUS PLUSState
}

// Forward reports whether a packet with the given source port travels in the
// initiator's direction.
func (s *Session) Forward(srcPort uint16) bool {
	return srcPort == s.InitSrcPort
}

func (s *Session) reset(index uint32, variant core.Variant) {
	*s = Session{
		Index:   index,
		Variant: variant,
		State:   StateActive,
		TCP:     TCPState{FwdSpin: NoSpin, RevSpin: NoSpin},
		QUIC:    QUICState{FwdSpin: NoSpin, RevSpin: NoSpin},
	}
}
