package stub

import (
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// Stream is one accepted TCP connection. It owns the set of Querys currently in flight against it;
// closing the stream (client disconnect, read error, or explicit shutdown) cancels every one of
// them, matching the original's "stream carries an implicit self-reference held until the client
// closes; on close all queries in the stream's set are cancelled" lifecycle rule (§4.6).
type Stream struct {
	conn     net.Conn
	endpoint *Endpoint
	listener *Listener
	trackKey string

	mu      sync.Mutex
	queries map[*Query]bool
	closed  bool
}

func newStream(conn net.Conn, endpoint *Endpoint, listener *Listener) *Stream {
	s := &Stream{
		conn: conn, endpoint: endpoint, listener: listener,
		trackKey: conn.RemoteAddr().String(),
		queries:  make(map[*Query]bool),
	}
	listener.connTrk.ConnState(s.trackKey, time.Now(), http.StateNew)

	return s
}

// serve reads length-prefixed DNS messages from the stream until it's closed, handing each off to
// the listener's ingress entry point - the same one UDP packets go through. This is its own
// goroutine (one per accepted connection); the only cross-goroutine state it touches is the
// dedupTable (via admission) and this Stream's own query set, both independently locked.
func (s *Stream) serve() {
	defer s.close()

	var lenBuf [2]byte
	for {
		if _, err := io.ReadFull(s.conn, lenBuf[:]); err != nil {
			return
		}

		n := binary.BigEndian.Uint16(lenBuf[:])
		if n == 0 {
			continue
		}

		msgBuf := make([]byte, n)
		if _, err := io.ReadFull(s.conn, msgBuf); err != nil {
			return
		}

		raw := &RequestPacket{
			Transport: TransportTCP,
			Endpoint:  s.endpoint,
			Raw:       msgBuf,
		}
		if tcpAddr, ok := s.conn.RemoteAddr().(*net.TCPAddr); ok {
			raw.SenderAddr = tcpAddr.IP
			raw.SenderPort = uint16(tcpAddr.Port)
		}

		s.listener.ingress(raw, s)
	}
}

// track registers q as belonging to this stream so stream closure cancels it.
func (s *Stream) track(q *Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.listener.cancelQuery(q)

		return
	}

	s.queries[q] = true
}

// untrack removes q once it has completed and replied - it no longer needs to be cancelled on
// stream close.
func (s *Stream) untrack(q *Query) {
	s.mu.Lock()
	delete(s.queries, q)
	s.mu.Unlock()
}

// write sends a length-prefixed reply packet over the stream.
func (s *Stream) write(raw []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(raw)))

	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := s.conn.Write(raw)

	return err
}

func (s *Stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}
	s.closed = true
	pending := make([]*Query, 0, len(s.queries))
	for q := range s.queries {
		pending = append(pending, q)
	}
	s.queries = nil
	s.mu.Unlock()

	s.conn.Close()
	s.listener.connTrk.ConnState(s.trackKey, time.Now(), http.StateClosed)

	for _, q := range pending {
		s.listener.cancelQuery(q)
	}
}
