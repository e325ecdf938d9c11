package pipeline

import (
	"errors"

	"firestige.xyz/spindle/internal/core"
	"firestige.xyz/spindle/internal/dstmap"
	"firestige.xyz/spindle/internal/estimator"
	"firestige.xyz/spindle/internal/flow"
	"firestige.xyz/spindle/internal/metrics"
	"firestige.xyz/spindle/internal/timer"
)

// Pipeline is the per-packet inspection engine: parse, session lookup, RTT
// estimation, destination rewrite, checksum fixup, trace. One pipeline owns
// one shard: its own session table and timer wheel, no locks. It never
// drops a packet; every buffer leaves with its cursor restored to the IPv4
// start.
type Pipeline struct {
	table    *flow.Table
	wheel    *timer.Wheel
	dst      *dstmap.Map
	clock    core.Clock
	tracer   core.TraceSink
	quicPort uint16
	timeout  int
	traceAll bool
}

// Options parameterize a pipeline shard.
type Options struct {
	QUICPort     uint16
	Tick         float64 // wheel tick in seconds
	TimeoutTicks int
	WheelSize    int
	MaxSessions  int
	Dst          *dstmap.Map
	Clock        core.Clock
	Tracer       core.TraceSink
	TraceAll     bool
}

// New creates a pipeline with a pre-allocated session pool.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		table:    flow.NewTable(opts.MaxSessions),
		dst:      opts.Dst,
		clock:    opts.Clock,
		tracer:   opts.Tracer,
		quicPort: opts.QUICPort,
		timeout:  opts.TimeoutTicks,
		traceAll: opts.TraceAll,
	}
	if p.tracer == nil {
		p.tracer = nopTracer{}
	}
	p.wheel = timer.NewWheel(opts.WheelSize, opts.MaxSessions, opts.Tick, p.expireSession)
	return p
}

type nopTracer struct{}

func (nopTracer) Trace(core.TraceRecord) {}

// expireSession reclaims an idle session: both key aliases are removed and
// the slot returns to the pool.
func (p *Pipeline) expireSession(handle uint32) {
	p.table.Remove(p.table.Get(handle))
	metrics.SessionsExpired.Inc()
	metrics.SessionsActive.Set(float64(p.table.Len()))
}

// Table exposes the session table for tests and diagnostics.
func (p *Pipeline) Table() *flow.Table {
	return p.table
}

// Process runs the frame through the pipeline. Buffers come back in the
// same order, cursor restored, ready for the next stage.
func (p *Pipeline) Process(frame core.Frame) {
	for _, b := range frame {
		// Advance the timer wheel between packets; cheap when no slot
		// boundary was crossed.
		now := p.clock.Now()
		p.wheel.Expire(now)
		p.process(b, now)
	}
}

func (p *Pipeline) process(b *core.Buffer, now float64) {
	metrics.PacketsTotal.Inc()

	start := b.Cursor()
	defer func() { b.Advance(start - b.Cursor()) }()

	if b.Remaining() < sizeIPv4 {
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonShortHeader).Inc()
		return
	}
	ip := ipv4Header(b.Current()[:sizeIPv4])
	if ip.version() != 4 {
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonUnsupportedVersion).Inc()
		return
	}
	b.Advance(sizeIPv4)

	var (
		session *flow.Session
		udp     udpHeader
		tcp     tcpHeader
		srcPort uint16
		dstPort uint16
		rtt     float64
		sampled bool
	)

	switch ip.protocol() {
	case core.ProtocolUDP:
		if b.Remaining() < sizeUDP {
			metrics.SkippedTotal.WithLabelValues(metrics.ReasonShortHeader).Inc()
			return
		}
		udp = udpHeader(b.Current()[:sizeUDP])
		b.Advance(sizeUDP)
		srcPort, dstPort = udp.srcPort(), udp.dstPort()

		if srcPort == p.quicPort || dstPort == p.quicPort {
			session, rtt, sampled = p.processQUIC(b, ip, srcPort, dstPort, now)
		} else {
			session, rtt, sampled = p.processPLUS(b, ip, srcPort, dstPort, now)
		}
		if session == nil {
			return
		}

	case core.ProtocolTCP:
		if b.Remaining() < sizeTCP {
			metrics.SkippedTotal.WithLabelValues(metrics.ReasonShortHeader).Inc()
			return
		}
		tcp = tcpHeader(b.Current())
		srcPort, dstPort = tcp.srcPort(), tcp.dstPort()
		session, rtt, sampled = p.processTCP(b, ip, tcp, now)
		if session == nil {
			return
		}

	default:
		// Not a transport this stage inspects.
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonUninspected).Inc()
		return
	}

	if sampled {
		metrics.RTTSeconds.WithLabelValues(session.Variant.String()).Observe(rtt)
	}

	session.PktCount++

	// NAT-like IP translation. Forward traffic is steered to the backend;
	// reverse traffic gets the address the initiator originally addressed.
	switch {
	case ip.srcIP() == session.InitSrcIP:
		ip.setDstIP(session.NewDstIP)
	case ip.dstIP() == session.InitSrcIP:
		ip.setSrcIP(session.OrigDstIP)
	default:
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonRewriteMismatch).Inc()
		return
	}

	// Transport checksum first: it covers the rewritten pseudo-header and
	// any in-place payload mutation (PLUS hop count).
	segment := p.transportSegment(b, ip, start)
	if udp != nil {
		udp.setChecksum(0)
		sum := transportChecksum(ip, segment)
		if sum == 0 {
			sum = 0xFFFF
		}
		udp.setChecksum(sum)
	} else {
		tcp.setChecksum(0)
		tcp.setChecksum(transportChecksum(ip, segment))
	}
	ip.setChecksum(ipv4Checksum(ip))

	// The timer just frees state once the flow is no longer observed. An
	// ERROR session keeps its current deadline and ages out.
	if session.State == flow.StateActive {
		p.wheel.Update(session.Index, p.timeout)
	}

	if b.Traced || p.traceAll {
		p.tracer.Trace(core.TraceRecord{
			SrcPort:  srcPort,
			DstPort:  dstPort,
			NewSrcIP: ip.srcIP(),
			NewDstIP: ip.dstIP(),
			Variant:  session.Variant,
			PktCount: session.PktCount,
		})
	}
}

// processQUIC parses the QUIC header and runs the spin estimator. Returns a
// nil session when the packet is skipped.
func (p *Pipeline) processQUIC(b *core.Buffer, ip ipv4Header, srcPort, dstPort uint16, now float64) (*flow.Session, float64, bool) {
	if b.Remaining() < sizeQUICMin {
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonShortHeader).Inc()
		return nil, 0, false
	}
	q, ok := parseQUIC(b)
	if !ok {
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonShortHeader).Inc()
		return nil, 0, false
	}

	session, created, err := p.findOrCreate(core.VariantQUIC, ip, srcPort, dstPort, 0)
	if err != nil {
		metrics.SkippedTotal.WithLabelValues(skipReason(err)).Inc()
		return nil, 0, false
	}
	if created {
		session.QUIC.ID = q.connectionID
	}

	rtt, sampled := estimator.QUIC(session, now, estimator.QUICInput{
		SrcPort:     srcPort,
		Measurement: q.measurement,
		PktNum:      q.pktNum,
	})
	return session, rtt, sampled
}

// processPLUS validates the PLUS magic, runs the PSN/PSE estimator and
// handles the hop-count extension. A non-PLUS UDP packet falls through
// uninspected.
func (p *Pipeline) processPLUS(b *core.Buffer, ip ipv4Header, srcPort, dstPort uint16, now float64) (*flow.Session, float64, bool) {
	if b.Remaining() < sizePLUS {
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonUninspected).Inc()
		return nil, 0, false
	}
	hdr := plusHeader(b.Current()[:sizePLUS])
	if hdr.magicAndFlags()&plusMagicMask != plusMagic {
		metrics.SkippedTotal.WithLabelValues(metrics.ReasonUninspected).Inc()
		return nil, 0, false
	}
	b.Advance(sizePLUS)

	session, _, err := p.findOrCreate(core.VariantPLUS, ip, srcPort, dstPort, hdr.cat())
	if err != nil {
		metrics.SkippedTotal.WithLabelValues(skipReason(err)).Inc()
		return nil, 0, false
	}

	rtt, sampled := estimator.PLUS(session, now, estimator.PLUSInput{
		SrcPort: srcPort,
		PSN:     hdr.psn(),
		PSE:     hdr.pse(),
	})

	// Hop-count extension: the single in-place payload mutation this stage
	// performs. Runs before checksum recompute so the UDP checksum covers
	// the updated byte.
	if hdr.magicAndFlags()&plusExtended != 0 && b.Remaining() >= sizePLUSExt {
		ext := plusExt(b.Current()[:sizePLUSExt])
		// A packet matching neither flow direction is forwarded unchanged,
		// so its hop count is left alone too.
		spurious := ip.srcIP() != session.InitSrcIP && ip.dstIP() != session.InitSrcIP
		if ext.pcfType() == 1 && ext.ii() == 0 && !spurious {
			ext.incHopCount()
		}
	}
	return session, rtt, sampled
}

// processTCP parses options, checks flags and runs the VEC/timestamp
// estimator. An option parse failure skips inspection but the packet still
// traverses rewrite when a session already exists.
func (p *Pipeline) processTCP(b *core.Buffer, ip ipv4Header, tcp tcpHeader, now float64) (*flow.Session, float64, bool) {
	srcPort, dstPort := tcp.srcPort(), tcp.dstPort()

	var (
		tsval, tsecr uint32
		hasTS        bool
		badOptions   bool
	)
	doff := tcp.dataOffset()
	if doff < sizeTCP || doff > b.Remaining() {
		badOptions = true
	} else if doff > sizeTCP {
		var err error
		tsval, tsecr, hasTS, err = parseTCPOptions(b.Current()[:doff], doff-sizeTCP)
		badOptions = err != nil
	}
	b.Advance(sizeTCP)

	if badOptions {
		// Inspection is off the table, but an established flow still gets
		// its rewrite.
		session := p.lookupSession(core.VariantTCP, ip, srcPort, dstPort, 0)
		if session == nil {
			metrics.SkippedTotal.WithLabelValues(metrics.ReasonBadOptions).Inc()
			return nil, 0, false
		}
		return session, 0, false
	}

	session, _, err := p.findOrCreate(core.VariantTCP, ip, srcPort, dstPort, 0)
	if err != nil {
		metrics.SkippedTotal.WithLabelValues(skipReason(err)).Inc()
		return nil, 0, false
	}

	// SYN+ACK carries no VEC; skip the measurement, keep the rewrite.
	if tcp.synAck() {
		return session, 0, false
	}

	rtt, sampled := estimator.TCP(session, now, estimator.TCPInput{
		SrcPort: srcPort,
		VEC:     tcp.vec(),
		TSVal:   tsval,
		TSEcr:   tsecr,
		HasTS:   hasTS,
		Seq:     tcp.seq(),
	})
	return session, rtt, sampled
}

// lookupSession probes the table with the forward-form key built from the
// packet, then with the reverse form: src_ip zeroed, the packet's source
// address as destination and the ports swapped back to initiator order.
// Return traffic carries the real backend's address, not the one the
// initiator addressed, so only the reverse form can match it.
func (p *Pipeline) lookupSession(variant core.Variant, ip ipv4Header, srcPort, dstPort uint16, cat uint64) *flow.Session {
	proto := ip.protocol()
	if variant == core.VariantPLUS {
		if s := p.table.Lookup(flow.MakePLUSKey(ip.srcIP(), ip.dstIP(), srcPort, dstPort, proto, cat)); s != nil {
			return s
		}
		return p.table.Lookup(flow.MakePLUSKey(0, ip.srcIP(), dstPort, srcPort, proto, cat))
	}
	if s := p.table.Lookup(flow.MakeKey(ip.srcIP(), ip.dstIP(), srcPort, dstPort, proto)); s != nil {
		return s
	}
	return p.table.Lookup(flow.MakeKey(0, ip.srcIP(), dstPort, srcPort, proto))
}

// findOrCreate resolves the packet to a session, creating one on the first
// packet of a flow whose destination port maps to a backend. Creation
// installs the reverse alias (src_ip=0, dst_ip=backend) so return traffic
// resolves to the same session, and starts the idle timer.
func (p *Pipeline) findOrCreate(variant core.Variant, ip ipv4Header, srcPort, dstPort uint16, cat uint64) (*flow.Session, bool, error) {
	if s := p.lookupSession(variant, ip, srcPort, dstPort, cat); s != nil {
		return s, false, nil
	}
	proto := ip.protocol()
	var key uint64
	if variant == core.VariantPLUS {
		key = flow.MakePLUSKey(ip.srcIP(), ip.dstIP(), srcPort, dstPort, proto, cat)
	} else {
		key = flow.MakeKey(ip.srcIP(), ip.dstIP(), srcPort, dstPort, proto)
	}

	// Only consider flows whose destination port is mapped.
	newDst := p.dst.Get(dstPort)
	if newDst == 0 {
		return nil, false, core.ErrUnknownDestination
	}

	s, err := p.table.Insert(key, variant)
	if err != nil {
		return nil, false, err
	}
	s.InitSrcPort = srcPort
	s.InitSrcIP = ip.srcIP()
	s.OrigDstIP = ip.dstIP()
	s.NewDstIP = newDst
	s.PktCount = 1

	var reverse uint64
	if variant == core.VariantPLUS {
		s.PLUS.CAT = cat
		reverse = flow.MakePLUSKey(0, newDst, srcPort, dstPort, proto, cat)
	} else {
		reverse = flow.MakeKey(0, newDst, srcPort, dstPort, proto)
	}
	p.table.Alias(reverse, s)

	p.wheel.Start(s.Index, p.timeout)

	metrics.SessionsCreated.WithLabelValues(variant.String()).Inc()
	metrics.SessionsActive.Set(float64(p.table.Len()))
	return s, true, nil
}

// transportSegment returns the bytes the transport checksum covers, bounded
// by the IP total length when it is sane, else by the buffer.
func (p *Pipeline) transportSegment(b *core.Buffer, ip ipv4Header, ipStart int) []byte {
	data := b.Bytes()
	segStart := ipStart + sizeIPv4
	segEnd := ipStart + int(ip.totalLen())
	if segEnd < segStart || segEnd > len(data) {
		segEnd = len(data)
	}
	return data[segStart:segEnd]
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, core.ErrUnknownDestination):
		return metrics.ReasonUnknownDestination
	case errors.Is(err, core.ErrPoolExhausted):
		return metrics.ReasonPoolExhausted
	default:
		return metrics.ReasonShortHeader
	}
}
