package stub

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/markdingo/dnsstub/internal/concurrencytracker"
	"github.com/markdingo/dnsstub/internal/connectiontracker"
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// Mode is the operator-configured enable state of one endpoint's transports, serialized to/from the
// tokens no/udp/tcp/yes (yes meaning both), per SPEC_FULL.md §6.
type Mode int

const (
	ModeOff Mode = iota
	ModeUDP
	ModeTCP
	ModeBoth
)

// ParseMode implements the no/udp/tcp/yes token vocabulary used by operator configuration.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "no":
		return ModeOff, nil
	case "udp":
		return ModeUDP, nil
	case "tcp":
		return ModeTCP, nil
	case "yes":
		return ModeBoth, nil
	}

	return ModeOff, fmt.Errorf("invalid stub listener mode %q, want one of no/udp/tcp/yes", s)
}

// String returns the no/udp/tcp/yes token ParseMode accepts for m.
func (m Mode) String() string {
	switch m {
	case ModeUDP:
		return "udp"
	case ModeTCP:
		return "tcp"
	case ModeBoth:
		return "yes"
	}

	return "no"
}

func (m Mode) wantsUDP() bool { return m == ModeUDP || m == ModeBoth }
func (m Mode) wantsTCP() bool { return m == ModeTCP || m == ModeBoth }

// Listener is the top-level stub listener: the primary endpoint plus zero or more operator-
// configured extra endpoints, all dispatching into the same resolver.Engine. It is the
// "StubListener context" called for by SPEC_FULL.md/§9's explicit-context design note - no package
// level globals, everything flows from here.
type Listener struct {
	Engine resolver.Engine
	Stdout io.Writer // Trace/log destination; nil disables tracing

	cct     concurrencytracker.Counter // Peak concurrent in-flight queries, for Report()
	connTrk *connectiontracker.Tracker // Peak concurrent TCP streams, for Report()

	mu        sync.Mutex
	endpoints []*Endpoint
	wg        sync.WaitGroup
	stopping  bool
}

// New constructs a Listener bound to engine. stdout may be nil to disable tracing.
func New(engine resolver.Engine, stdout io.Writer) *Listener {
	return &Listener{Engine: engine, Stdout: stdout, connTrk: connectiontracker.New("Stub TCP")}
}

// Name implements reporter.Reporter.
func (l *Listener) Name() string { return "Stub Listener" }

// Report implements reporter.Reporter, summarizing peak query concurrency and the TCP
// connectiontracker's own report.
func (l *Listener) Report(resetCounters bool) string {
	return fmt.Sprintf("peakConcurrency=%d %s", l.cct.Peak(resetCounters), l.connTrk.Report(resetCounters))
}

// Start brings up the primary endpoint per primaryMode plus one extra endpoint per entry in
// extras. A fatal failure on the primary (anything except address-in-use/permission-denied) aborts
// Start entirely; address-in-use/permission-denied on the primary disables the stub listener but is
// not treated as fatal by the caller (SPEC_FULL.md §4.6). Extra endpoint failures are logged and
// skipped individually.
func (l *Listener) Start(primaryMode Mode, extras []EndpointConfig) error {
	primaryCfg := DefaultPrimaryEndpointConfig()
	primaryCfg.UDP = primaryMode.wantsUDP()
	primaryCfg.TCP = primaryMode.wantsTCP()

	if primaryCfg.UDP || primaryCfg.TCP {
		ep, err := l.bindEndpoint(primaryCfg)
		if err != nil {
			if isAddrInUseOrPermission(err) {
				l.trace(fmt.Sprintf("stub: primary endpoint disabled: %v", err))

				return nil
			}

			return fmt.Errorf("stub: primary endpoint: %w", err)
		}
		l.addEndpoint(ep)
	}

	for _, cfg := range extras {
		cfg.Kind = KindExtra
		ep, err := l.bindEndpoint(cfg)
		if err != nil {
			l.trace(fmt.Sprintf("stub: extra endpoint %s skipped: %v", cfg, err))

			continue
		}
		l.addEndpoint(ep)
	}

	return nil
}

func (l *Listener) addEndpoint(ep *Endpoint) {
	l.mu.Lock()
	l.endpoints = append(l.endpoints, ep)
	l.mu.Unlock()

	if ep.udpConn != nil {
		l.wg.Add(1)
		go l.serveUDP(ep)
	}
	if ep.tcpLn != nil {
		l.wg.Add(1)
		go l.serveTCP(ep)
	}
}

func (l *Listener) bindEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	ep := &Endpoint{config: cfg, dedup: newDedupTable()}

	if cfg.Kind == KindPrimary {
		ep.advertiseSizeMax = consts.AdvertiseDatagramSizeMax
		ep.nsid = deriveNSID()
	} else {
		ep.advertiseSizeMax = consts.AdvertiseExtraDatagramSizeMax
		// NSID suppressed on extra endpoints - see SUPPLEMENTED FEATURES in SPEC_FULL.md.
	}

	lc := newListenConfig(cfg)
	addr := net.JoinHostPort(cfg.Address.String(), fmt.Sprint(cfg.Port))

	if cfg.UDP {
		network := "udp4"
		if cfg.Address.To4() == nil {
			network = "udp6"
		}
		pc, err := lc.ListenPacket(nil, network, addr)
		if err != nil {
			return nil, err
		}
		wrapped, err := wrapPacketConn(pc, network == "udp6")
		if err != nil {
			pc.Close()

			return nil, err
		}
		ep.udpConn = wrapped
	}

	if cfg.TCP {
		network := "tcp4"
		if cfg.Address.To4() == nil {
			network = "tcp6"
		}
		ln, err := lc.Listen(nil, network, addr)
		if err != nil {
			if ep.udpConn != nil {
				ep.udpConn.Close()
			}

			return nil, err
		}
		ep.tcpLn = ln
	}

	return ep, nil
}

// Stop releases every endpoint's sockets. In-flight queries are not explicitly cancelled here for
// UDP (there is nothing to cancel - the client simply times out); in-flight TCP streams are closed,
// which cancels their queries per Stream.close.
func (l *Listener) Stop() {
	l.mu.Lock()
	l.stopping = true
	endpoints := l.endpoints
	l.endpoints = nil
	l.mu.Unlock()

	for _, ep := range endpoints {
		if ep.udpConn != nil {
			ep.udpConn.Close()
		}
		if ep.tcpLn != nil {
			ep.tcpLn.Close()
		}
	}

	l.wg.Wait()
}

func (l *Listener) trace(s string) {
	if l.Stdout != nil {
		fmt.Fprintln(l.Stdout, s)
	}
}

func isAddrInUseOrPermission(err error) bool {
	msg := err.Error()

	return strings.Contains(msg, "address already in use") || strings.Contains(msg, "permission denied")
}

// cancelQuery abandons q: it asks the engine to stop delivering completions and releases its dedup
// entry without sending a reply.
func (l *Listener) cancelQuery(q *Query) {
	if q.rq != nil {
		l.Engine.Cancel(q.rq)
	}
	l.finishQuery(q)
}

// finishQuery is the single point through which every query - sent, cancelled, or dropped - passes
// on its way out, so peak-concurrency accounting always balances against dispatchEngineQuery's Add.
func (l *Listener) finishQuery(q *Query) {
	q.finish()
	l.cct.Done()
}

// dispatchEngineQuery is invoked by dispatch.go once admission has decided this request is going
// ahead, as either bypass or normal mode.
func (l *Listener) dispatchEngineQuery(q *Query, question dns.Question, flags resolver.Flags) {
	q.Flags = flags
	q.rq = l.Engine.NewQuery(q, question, flags, l.onCompletion)

	if q.Stream != nil {
		q.Stream.track(q)
	}

	l.cct.Add()

	if err := l.Engine.Start(q.rq); err != nil {
		l.trace(fmt.Sprintf("stub: engine start failed: %v", err))
		l.finishQuery(q)
	}
}
