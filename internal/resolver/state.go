package resolver

// State is the terminal outcome of a Query as reported by the resolver engine. It is a closed set.
// The switches over State in this module do not panic on a value they do not list: String returns
// "UNKNOWN" and the stub listener's reply assembly answers SERVFAIL.
type State int

const (
	StateNull State = iota // Not yet started - never observed by a completion callback
	StatePending
	StateValidating

	StateSuccess
	StateRcodeFailure
	StateNotFound

	StateTimeout
	StateAttemptsMax

	StateNoServers
	StateInvalidReply
	StateErrno
	StateAborted
	StateDNSSECFailed
	StateNoTrustAnchor
	StateRRTypeUnsupported
	StateNetworkDown
	StateNoSource
	StateStubLoop
)

// String renders the state for log lines. Kept terse, matching dnsutil.CompactMsgString's style.
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StatePending:
		return "PENDING"
	case StateValidating:
		return "VALIDATING"
	case StateSuccess:
		return "SUCCESS"
	case StateRcodeFailure:
		return "RCODE_FAILURE"
	case StateNotFound:
		return "NOT_FOUND"
	case StateTimeout:
		return "TIMEOUT"
	case StateAttemptsMax:
		return "ATTEMPTS_MAX"
	case StateNoServers:
		return "NO_SERVERS"
	case StateInvalidReply:
		return "INVALID_REPLY"
	case StateErrno:
		return "ERRNO"
	case StateAborted:
		return "ABORTED"
	case StateDNSSECFailed:
		return "DNSSEC_FAILED"
	case StateNoTrustAnchor:
		return "NO_TRUST_ANCHOR"
	case StateRRTypeUnsupported:
		return "RR_TYPE_UNSUPPORTED"
	case StateNetworkDown:
		return "NETWORK_DOWN"
	case StateNoSource:
		return "NO_SOURCE"
	case StateStubLoop:
		return "STUB_LOOP"
	}

	return "UNKNOWN"
}

// Terminal reports whether this state is a completion state a Query can be delivered with. NULL,
// PENDING and VALIDATING are internal/in-flight states and must never reach a completion callback.
func (s State) Terminal() bool {
	switch s {
	case StateNull, StatePending, StateValidating:
		return false
	}

	return true
}

// CNAMEResult is the outcome of Query.ProcessCNAME().
type CNAMEResult int

const (
	CNAMEOK       CNAMEResult = iota // No redirect pending, or redirect consumed with nothing further to do
	CNAMERestarted                   // Query was restarted against a redirected name; a further completion will arrive
	CNAMELoop                        // CNAME_REDIRECT_MAX exceeded
)
