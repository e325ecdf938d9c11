// Package flow implements flow keying and the session table.
package flow

// Flow keys are 64-bit values canonicalizing the 5-tuple. Both directions of
// a flow are reachable through two keys installed in the table: the forward
// key built from the initiator's addresses, and a reverse key built with
// src_ip=0 and the rewritten destination, so return traffic from the real
// backend hashes to the same session.

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// MakeKey builds the canonical key for a TCP or QUIC flow.
func MakeKey(srcIP, dstIP uint32, srcPort, dstPort uint16, protocol uint8) uint64 {
	hi := uint64(srcIP)<<32 | uint64(dstIP)
	lo := uint64(srcPort)<<24 | uint64(dstPort)<<8 | uint64(protocol)
	return mix64(hi) ^ mix64(lo+0x9e3779b97f4a7c15)
}

// MakePLUSKey folds the CAT into the key. The UDP 4-tuple alone does not
// identify a PLUS association: two associations may share it and differ only
// in CAT.
func MakePLUSKey(srcIP, dstIP uint32, srcPort, dstPort uint16, protocol uint8, cat uint64) uint64 {
	return mix64(MakeKey(srcIP, dstIP, srcPort, dstPort, protocol) ^ cat)
}
