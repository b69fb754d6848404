package stub

import (
	"bytes"
	"net"
	"sync"
)

// dedupKey identifies a retransmitted UDP query: same transport, same sender address/port, and an
// identical 12-byte DNS header (ID, flags and section counts). Two distinct queries from the same
// client happening to share an ID is vanishingly unlikely to also share section counts and flags,
// so this is treated as "the same query retransmitted", grounded on stub_packet_hash_func/
// stub_packet_compare_func in the original source.
type dedupKey struct {
	Transport  Transport
	Family     int // 4 for an IPv4 sender, 6 for an IPv6 sender
	SenderAddr string
	SenderPort uint16
	HeaderBytes [12]byte
}

func newDedupKey(r *RequestPacket) dedupKey {
	family := 4
	if r.SenderAddr.To4() == nil {
		family = 6
	}

	return dedupKey{
		Transport:   r.Transport,
		Family:      family,
		SenderAddr:  r.SenderAddr.String(),
		SenderPort:  r.SenderPort,
		HeaderBytes: r.headerBytes(),
	}
}

// dedupTable tracks in-flight queries per endpoint so that a UDP retransmit of a query already
// being resolved is suppressed rather than spawning a second resolution. Its mutex guards only the
// map mutation itself, never a resolver call or I/O (SPEC_FULL.md §5 / original source design note
// on narrow locking for the stub's queries_by_packet hashmap).
type dedupEntry struct {
	query *Query
	raw   []byte
}

type dedupTable struct {
	mu      sync.Mutex
	inFlight map[dedupKey]dedupEntry
}

func newDedupTable() *dedupTable {
	return &dedupTable{inFlight: make(map[dedupKey]dedupEntry)}
}

// Admit registers a newly-arrived RequestPacket. If an identical query (same dedup key AND
// identical packet bytes) is already in flight, Admit returns (existing, false) and the caller must
// drop the new packet rather than starting a second resolution. A request sharing a dedup key but
// not the full packet bytes is treated as a distinct new query (per §3: "two requests with equal
// key are treated as retransmits when their full packet bytes also compare equal").
func (d *dedupTable) Admit(r *RequestPacket, q *Query) (*Query, bool) {
	if r.Transport != TransportUDP {
		// Only UDP queries are subject to client-side retransmit - a TCP stream's query is
		// inherently de-duplicated by the connection itself.
		return q, true
	}

	key := newDedupKey(r)

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.inFlight[key]; ok && bytes.Equal(existing.raw, r.Raw) {
		return existing.query, false
	}

	d.inFlight[key] = dedupEntry{query: q, raw: r.Raw}
	q.dedupKey = key
	q.dedupTable = d

	return q, true
}

// release removes q's dedup entry once it has completed or been abandoned, so a genuinely new query
// reusing the same 4-tuple/header bytes later is not spuriously suppressed.
func (d *dedupTable) release(q *Query) {
	if q.dedupTable != d {
		return
	}

	d.mu.Lock()
	if entry, ok := d.inFlight[q.dedupKey]; ok && entry.query == q {
		delete(d.inFlight, q.dedupKey)
	}
	d.mu.Unlock()
}

// senderKey is a convenience used by tests to build a dedup key without going through a full
// RequestPacket.
func senderKey(transport Transport, addr net.IP, port uint16, hdr [12]byte) dedupKey {
	family := 4
	if addr.To4() == nil {
		family = 6
	}

	return dedupKey{Transport: transport, Family: family, SenderAddr: addr.String(), SenderPort: port, HeaderBytes: hdr}
}
