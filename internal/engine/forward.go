package engine

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/spindle/internal/core"
)

// CountForwarder discards buffers, counting them. The stand-in for the real
// next stage when there is no egress.
type CountForwarder struct {
	count atomic.Uint64
}

// Forward counts the frame's buffers.
func (f *CountForwarder) Forward(frame core.Frame) {
	f.count.Add(uint64(len(frame)))
}

// Count returns the packets forwarded so far.
func (f *CountForwarder) Count() uint64 {
	return f.count.Load()
}

// PcapForwarder writes rewritten packets to a raw-IP pcap file, for
// offline verification of the rewrite and checksum stages.
type PcapForwarder struct {
	file   *os.File
	writer *pcapgo.Writer
}

// NewPcapForwarder creates the output file and writes the pcap header.
func NewPcapForwarder(path string) (*PcapForwarder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeRaw); err != nil {
		f.Close()
		return nil, err
	}
	return &PcapForwarder{file: f, writer: w}, nil
}

// Forward appends each buffer to the capture file.
func (f *PcapForwarder) Forward(frame core.Frame) {
	for _, b := range frame {
		data := b.Current()
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(data),
			Length:        len(data),
		}
		// Write errors are discarded; Close reports only the error from
		// closing the file.
		_ = f.writer.WritePacket(ci, data)
	}
}

// Close flushes and closes the capture file.
func (f *PcapForwarder) Close() error {
	return f.file.Close()
}
