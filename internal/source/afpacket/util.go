package afpacket

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// recomputeSize derives ring geometry from a target buffer size. Frame size
// is rounded up to a power of two no smaller than the snap length; block
// size must be a multiple of both frame size and page size.
func recomputeSize(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	frameSize = pageSize
	for frameSize < snapLen {
		frameSize *= 2
	}
	blockSize = frameSize * 128
	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, fmt.Errorf("buffer size %dMB too small for block size %d", bufferSizeMB, blockSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

// compileBPF compiles a pcap filter expression into raw instructions for
// the AF_PACKET socket.
func compileBPF(filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}
	rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
	for i, ins := range pcapBPF {
		rawBPF[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBPF, nil
}
