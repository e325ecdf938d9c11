// Package afpacket implements the AF_PACKET TPACKETv3 source.
package afpacket

import (
	"os"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/spindle/internal/source"
)

const Name = "afpacket"

// Options for the af_packet ring.
type Options struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BpfFilter    string `mapstructure:"bpf_filter"`
}

// Source reads from an AF_PACKET v3 ring. Symmetric fanout keeps both
// directions of a flow on the same ring, which the pipeline's session
// correlation relies on.
type Source struct {
	handle *afpacket.TPacket
}

func init() {
	source.Register(Name, func(options map[string]interface{}) (source.Source, error) {
		var opts Options
		if err := source.DecodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewSource(&opts)
	})
}

// NewSource opens the ring on the configured device.
func NewSource(opts *Options) (*Source, error) {
	if opts.SnapLen == 0 {
		opts.SnapLen = 65536
	}
	if opts.BufferSizeMB == 0 {
		opts.BufferSizeMB = 8
	}
	if opts.TimeoutMs == 0 {
		opts.TimeoutMs = 100
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.TimeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, err
	}

	if opts.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, opts.FanoutID); err != nil {
			tp.Close()
			return nil, err
		}
	}

	if opts.BpfFilter != "" {
		rawBPF, err := compileBPF(opts.BpfFilter, frameSize)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(rawBPF); err != nil {
			tp.Close()
			return nil, err
		}
	}

	return &Source{handle: tp}, nil
}

// ReadPacket returns the next IPv4-first packet, nil on poll timeout or for
// non-IPv4 frames.
func (s *Source) ReadPacket() ([]byte, error) {
	data, _, err := s.handle.ReadPacketData()
	if err == afpacket.ErrTimeout {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return source.StripEthernet(data), nil
}

// Close releases the ring.
func (s *Source) Close() error {
	s.handle.Close()
	return nil
}
