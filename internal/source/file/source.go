// Package file implements an offline pcap file source for lab replay.
package file

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/spindle/internal/source"
)

const Name = "file"

// Options for pcap replay.
type Options struct {
	Path string `mapstructure:"path"`
}

// Source replays a capture file. Reads return io.EOF when the file is
// drained.
type Source struct {
	handle   *pcap.Handle
	linkType layers.LinkType
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

// NewSource opens the capture at path.
func NewSource(opts *Options) (*Source, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("file source requires 'path' option")
	}
	h, err := pcap.OpenOffline(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", opts.Path, err)
	}
	return &Source{handle: h, linkType: h.LinkType()}, nil
}

// ReadPacket returns the next IPv4-first packet, nil for frames that do not
// carry IPv4.
func (s *Source) ReadPacket() ([]byte, error) {
	data, _, err := s.handle.ReadPacketData()
	if err != nil {
		return nil, err
	}
	switch s.linkType {
	case layers.LinkTypeEthernet:
		return source.StripEthernet(data), nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return data, nil
	default:
		return nil, nil
	}
}

// Close releases the handle.
func (s *Source) Close() error {
	s.handle.Close()
	return nil
}
