// Package pipeline implements the per-packet inspection pipeline.
package pipeline

import (
	"encoding/binary"

	"firestige.xyz/spindle/internal/core"
)

// Header sizes in bytes.
const (
	sizeIPv4    = 20
	sizeUDP     = 8
	sizeTCP     = 20
	sizeQUICMin = 3
	sizePLUS    = 20
	sizePLUSExt = 3
)

// QUIC header bits, early draft-05 wire image. HAS_ID set means the short
// header carries a connection ID; newer drafts reversed the meaning and are
// deliberately not recognized.
const (
	quicIsLong   = 0x80
	quicHasID    = 0x40
	quicTypeMask = 0x1F

	quicPktNum8  = 0x01
	quicPktNum16 = 0x02
	quicPktNum32 = 0x03
)

// VEC field position in the TCP data-offset-and-reserved byte.
const (
	tcpVECMask  = 0x0E
	tcpVECShift = 1
)

// TCP flag bits in byte 13.
const (
	tcpFlagSYN = 0x02
	tcpFlagACK = 0x10
)

// TCP option kinds.
const (
	tcpOptEnd       = 0
	tcpOptNop       = 1
	tcpOptTimestamp = 8
	tcpOptTSLen     = 10
)

// PLUS magic and flags in the first header byte.
const (
	plusMagicMask = 0xF0
	plusMagic     = 0xD0
	plusExtended  = 0x01
)

// ipv4Header is a view over the 20 fixed IPv4 header bytes. The slice
// aliases the packet buffer, so writes rewrite the packet.
type ipv4Header []byte

func (h ipv4Header) version() uint8  { return h[0] >> 4 }
func (h ipv4Header) protocol() uint8 { return h[9] }
func (h ipv4Header) totalLen() uint16 {
	return binary.BigEndian.Uint16(h[2:4])
}
func (h ipv4Header) srcIP() uint32 {
	return binary.BigEndian.Uint32(h[12:16])
}
func (h ipv4Header) dstIP() uint32 {
	return binary.BigEndian.Uint32(h[16:20])
}
func (h ipv4Header) setSrcIP(ip uint32) {
	binary.BigEndian.PutUint32(h[12:16], ip)
}
func (h ipv4Header) setDstIP(ip uint32) {
	binary.BigEndian.PutUint32(h[16:20], ip)
}
func (h ipv4Header) setChecksum(sum uint16) {
	binary.BigEndian.PutUint16(h[10:12], sum)
}

// udpHeader is a view over the 8 UDP header bytes.
type udpHeader []byte

func (h udpHeader) srcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }
func (h udpHeader) dstPort() uint16 { return binary.BigEndian.Uint16(h[2:4]) }
func (h udpHeader) setChecksum(sum uint16) {
	binary.BigEndian.PutUint16(h[6:8], sum)
}

// tcpHeader is a view over the 20 fixed TCP header bytes.
type tcpHeader []byte

func (h tcpHeader) srcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }
func (h tcpHeader) dstPort() uint16 { return binary.BigEndian.Uint16(h[2:4]) }
func (h tcpHeader) seq() uint32     { return binary.BigEndian.Uint32(h[4:8]) }
func (h tcpHeader) dataOffset() int { return int(h[12]>>4) * 4 }
func (h tcpHeader) vec() uint8      { return (h[12] & tcpVECMask) >> tcpVECShift }
func (h tcpHeader) synAck() bool {
	return h[13]&tcpFlagSYN != 0 && h[13]&tcpFlagACK != 0
}
func (h tcpHeader) setChecksum(sum uint16) {
	binary.BigEndian.PutUint16(h[16:18], sum)
}

// parseTCPOptions walks the option area of a TCP header looking for the
// timestamp option. data must start at the fixed header; optLen is the
// option area length already validated against the buffer. Returns
// ErrBadOptions on an ill-formed length or overrun.
func parseTCPOptions(data []byte, optLen int) (tsval, tsecr uint32, hasTS bool, err error) {
	opts := data[sizeTCP : sizeTCP+optLen]
	for i := 0; i < len(opts); {
		switch opts[i] {
		case tcpOptEnd:
			return tsval, tsecr, hasTS, nil
		case tcpOptNop:
			i++
		default:
			if i+1 >= len(opts) {
				return 0, 0, false, core.ErrBadOptions
			}
			l := int(opts[i+1])
			if l < 2 || i+l > len(opts) {
				return 0, 0, false, core.ErrBadOptions
			}
			if opts[i] == tcpOptTimestamp {
				if l != tcpOptTSLen {
					return 0, 0, false, core.ErrBadOptions
				}
				tsval = binary.BigEndian.Uint32(opts[i+2 : i+6])
				tsecr = binary.BigEndian.Uint32(opts[i+6 : i+10])
				hasTS = true
			}
			i += l
		}
	}
	return tsval, tsecr, hasTS, nil
}

// quicHeader is the result of parsing a QUIC long or short header.
type quicHeader struct {
	long         bool
	connectionID uint64
	pktNum       uint32
	measurement  uint8
}

// parseQUIC consumes a QUIC header from the buffer cursor. Returns false if
// any field would read past the buffer or the packet-number encoding is
// unknown; the cursor is left wherever parsing stopped, the caller restores
// it.
func parseQUIC(b *core.Buffer) (quicHeader, bool) {
	var q quicHeader
	t := b.Current()[0]
	b.Advance(1)

	if t&quicIsLong != 0 {
		// Long header: connection ID, packet number, version.
		q.long = true
		if b.Remaining() < 8+4+4 {
			return q, false
		}
		q.connectionID = binary.BigEndian.Uint64(b.Current()[:8])
		b.Advance(8)
		q.pktNum = binary.BigEndian.Uint32(b.Current()[:4])
		b.Advance(4)
		// Version, not interpreted.
		b.Advance(4)
	} else {
		if t&quicHasID != 0 {
			if b.Remaining() < 8 {
				return q, false
			}
			q.connectionID = binary.BigEndian.Uint64(b.Current()[:8])
			b.Advance(8)
		}
		switch t & quicTypeMask {
		case quicPktNum8:
			if b.Remaining() < 1 {
				return q, false
			}
			q.pktNum = uint32(b.Current()[0])
			b.Advance(1)
		case quicPktNum16:
			if b.Remaining() < 2 {
				return q, false
			}
			q.pktNum = uint32(binary.BigEndian.Uint16(b.Current()[:2]))
			b.Advance(2)
		case quicPktNum32:
			if b.Remaining() < 4 {
				return q, false
			}
			q.pktNum = binary.BigEndian.Uint32(b.Current()[:4])
			b.Advance(4)
		default:
			return q, false
		}
	}

	if b.Remaining() < 1 {
		return q, false
	}
	q.measurement = b.Current()[0]
	return q, true
}

// plusHeader is a view over the 20 fixed PLUS header bytes.
type plusHeader []byte

func (h plusHeader) magicAndFlags() uint8 { return h[0] }
func (h plusHeader) psn() uint32          { return binary.BigEndian.Uint32(h[1:5]) }
func (h plusHeader) pse() uint32          { return binary.BigEndian.Uint32(h[5:9]) }
func (h plusHeader) cat() uint64          { return binary.BigEndian.Uint64(h[9:17]) }

// plusExt is a view over the extension header that may follow: PCF type,
// PCF len plus integrity indicator, and the hop count.
type plusExt []byte

func (h plusExt) pcfType() uint8 { return h[0] }
func (h plusExt) ii() uint8      { return h[1] & 0x03 }
func (h plusExt) incHopCount()   { h[2]++ }
