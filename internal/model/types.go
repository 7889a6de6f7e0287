package model

import (
	"fmt"
	"strings"
)

// Protocol classifies engine traffic: TLS (port 443) or HTTP (port 80).
// The zero value is TLS, which is also the engine's default when a log
// line carries no protocol tag.
type Protocol int

const (
	// ProtocolTLS is port-443 traffic.
	ProtocolTLS Protocol = iota
	// ProtocolHTTP is port-80 traffic.
	ProtocolHTTP
)

// Protocols lists every protocol in declaration order.
var Protocols = []Protocol{ProtocolTLS, ProtocolHTTP}

// String returns the tag used in engine output ("TLS" or "HTTP").
func (p Protocol) String() string {
	switch p {
	case ProtocolTLS:
		return "TLS"
	case ProtocolHTTP:
		return "HTTP"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol parses a protocol tag case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TLS", "HTTPS":
		return ProtocolTLS, nil
	case "HTTP":
		return ProtocolHTTP, nil
	default:
		return ProtocolTLS, fmt.Errorf("unknown protocol %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(b []byte) error {
	v, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// LockEntry records that the engine durably committed to a strategy for
// one (domain, protocol) pair.
type LockEntry struct {
	Domain   string   `json:"domain"`
	Protocol Protocol `json:"protocol"`
	Strategy int      `json:"strategy"`
}

// Counters holds cumulative outcomes for one (domain, strategy) pair.
type Counters struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Total returns the number of recorded outcomes.
func (c Counters) Total() int {
	return c.Successes + c.Failures
}

// Rate returns the success percentage; see ComputeRate.
func (c Counters) Rate() int {
	return ComputeRate(c)
}

// HistoryEntry maps strategy number to counters for one domain.
type HistoryEntry map[int]Counters

// Clone returns a deep copy of the entry.
func (h HistoryEntry) Clone() HistoryEntry {
	out := make(HistoryEntry, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// HistoryRecord is one flattened (domain, strategy) history row.
type HistoryRecord struct {
	Domain   string `json:"domain"`
	Strategy int    `json:"strategy"`
	Counters
}
