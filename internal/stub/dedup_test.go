package stub

import (
	"net"
	"testing"
)

func newTestRequest(raw []byte) *RequestPacket {
	return &RequestPacket{
		Transport:  TransportUDP,
		SenderAddr: net.ParseIP("127.0.0.1"),
		SenderPort: 54321,
		Raw:        raw,
	}
}

func TestDedupAdmitsRetransmitAsSameQuery(t *testing.T) {
	table := newDedupTable()
	raw := []byte{0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	first := &Query{}
	admitted, isNew := table.Admit(newTestRequest(raw), first)
	if !isNew || admitted != first {
		t.Fatalf("first arrival should be admitted as new: isNew=%v", isNew)
	}

	retransmit := &Query{}
	admitted, isNew = table.Admit(newTestRequest(raw), retransmit)
	if isNew {
		t.Fatal("an identical retransmit must not be admitted as new")
	}
	if admitted != first {
		t.Error("retransmit should resolve to the original in-flight Query")
	}
}

func TestDedupDistinctPacketsAreNotSuppressed(t *testing.T) {
	table := newDedupTable()
	rawA := []byte{0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	rawB := []byte{0x00, 0x02, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	first := &Query{}
	table.Admit(newTestRequest(rawA), first)

	second := &Query{}
	_, isNew := table.Admit(newTestRequest(rawB), second)
	if !isNew {
		t.Fatal("a packet with a different ID is a distinct query, not a retransmit")
	}
}

func TestDedupTCPNeverSuppressed(t *testing.T) {
	table := newDedupTable()
	raw := []byte{0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	req := newTestRequest(raw)
	req.Transport = TransportTCP

	table.Admit(req, &Query{})
	_, isNew := table.Admit(req, &Query{})
	if !isNew {
		t.Fatal("TCP queries must never be suppressed by the UDP retransmit dedup table")
	}
}

func TestDedupReleaseAllowsReadmission(t *testing.T) {
	table := newDedupTable()
	raw := []byte{0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	q, isNew := table.Admit(newTestRequest(raw), &Query{})
	if !isNew {
		t.Fatal("expected first admission to be new")
	}
	q.finish()

	_, isNew = table.Admit(newTestRequest(raw), &Query{})
	if !isNew {
		t.Fatal("after release, an identical packet must be treated as a fresh query")
	}
}

func TestSenderKeyDistinguishesFamily(t *testing.T) {
	hdr := [12]byte{}
	v4 := senderKey(TransportUDP, net.ParseIP("192.0.2.1"), 53, hdr)
	v6 := senderKey(TransportUDP, net.ParseIP("2001:db8::1"), 53, hdr)
	if v4.Family == v6.Family {
		t.Error("expected distinct Family tags for IPv4 and IPv6 senders")
	}
}
