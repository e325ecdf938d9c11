// Package trace implements trace sinks for per-packet records.
package trace

import (
	"net/netip"

	"firestige.xyz/spindle/internal/core"
	"firestige.xyz/spindle/internal/log"
)

// Nop discards all records.
type Nop struct{}

func (Nop) Trace(core.TraceRecord) {}

// LogSink writes one structured log line per record. Tracing is armed
// per-buffer, so this stays off the hot path unless explicitly enabled.
type LogSink struct{}

func (LogSink) Trace(rec core.TraceRecord) {
	log.GetLogger().WithFields(map[string]interface{}{
		"type":       rec.Variant.String(),
		"src_port":   rec.SrcPort,
		"dst_port":   rec.DstPort,
		"new_src_ip": ipString(rec.NewSrcIP),
		"new_dst_ip": ipString(rec.NewDstIP),
		"pkt_count":  rec.PktCount,
	}).Info("packet")
}

// Capture collects records for tests.
type Capture struct {
	Records []core.TraceRecord
}

func (c *Capture) Trace(rec core.TraceRecord) {
	c.Records = append(c.Records, rec)
}

func ipString(ip uint32) string {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}).String()
}
