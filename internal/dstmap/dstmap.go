// Package dstmap implements the destination-port to backend-IP lookup.
package dstmap

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"
)

// Map is a flat per-port array of backend IPv4 addresses in host order.
// Zero means the port is not mapped. Writes happen only at configuration
// time, before packets flow; lookups afterwards are lock-free reads.
type Map struct {
	backends [1 << 16]uint32
}

// Set binds a destination port to a backend address.
func (m *Map) Set(port uint16, ip uint32) {
	m.backends[port] = ip
}

// Get returns the backend for a destination port, or 0 when the port is not
// mapped.
func (m *Map) Get(port uint16) uint32 {
	return m.backends[port]
}

// file is the on-disk backends document.
type file struct {
	Backends []entry `yaml:"backends"`
}

type entry struct {
	Port uint16 `yaml:"port"`
	IP   string `yaml:"ip"`
}

// Load parses a backends YAML file into a fresh map.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backends file %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse backends file %s: %w", path, err)
	}

	m := &Map{}
	for _, e := range f.Backends {
		addr, err := netip.ParseAddr(e.IP)
		if err != nil || !addr.Is4() {
			return nil, fmt.Errorf("backends file %s: port %d: invalid IPv4 address %q", path, e.Port, e.IP)
		}
		b := addr.As4()
		m.Set(e.Port, uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3]))
	}
	return m, nil
}
