package stub

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"sync"
)

// machineSecret is generated once per process and never persisted or logged: NSID values derived
// from it must be preimage-resistant (SPEC_FULL.md/§9 design note), and the simplest way to
// guarantee that without touching any host-identity file is to never need to recover the secret at
// all - a fresh one each run is sufficient, since NSID's only job is to let an operator correlate
// "did this reply come from the same running process" across queries within one run, not across
// restarts.
var (
	machineSecretOnce sync.Once
	machineSecret      [32]byte
)

func getMachineSecret() [32]byte {
	machineSecretOnce.Do(func() {
		_, _ = rand.Read(machineSecret[:])
	})

	return machineSecret
}

// deriveNSID computes this process's NSID identity: HMAC-SHA256(machineSecret, NSIDSuffix),
// truncated to 16 bytes. HMAC gives preimage resistance against the secret by construction; the
// fixed suffix means every NSID emitted by this process is identical, which is the point - a
// stable per-process identifier, not a per-query nonce. The secret is not derived from any machine
// identity, so the NSID differs between restarts and between processes on the same host.
func deriveNSID() []byte {
	secret := getMachineSecret()
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(consts.NSIDSuffix))
	sum := mac.Sum(nil)

	return sum[:16]
}
