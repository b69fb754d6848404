/*

The bestserver package tracks the reliability of each server in a list and picks which one an
application should use next. What a server represents is unknown to this package - it could be a
forwarding address, a URL, the name of a racing pigeon... whatever.

After a server is used by the application, the application calls this package to record
success/failure (and latency). The success/failure result influences which server is chosen next;
the traditional algorithm accepts the latency but does not use it.

Typical usage looks like this:

 bs, err := bestserver.NewTraditional(Config, ServerList) // Construct a bestserver container
 for {
      server, _ := bs.Best()                                                 // Get current best server
      doStuffWithServer(server.Name())                                       // Use it
      bs.Result(server, success bool, when time.Time, latency time.Duration) // Say how it went
 }

A call to Result() reporting a failure of the current best server moves the best server on to the
next one in the list. Successes, and failures of any other server, leave the best server unchanged.
Calls to Best() will always return the same server details if no intervening calls to Result() have
been made.

Callers should not cache returns from Best() as another goroutine's Result() may have moved the best
server on in the meantime.

The only implementation created with NewTraditional() is intended to mimic nameserver selection by
res_send(3) as described in RESOLVER(3). That is, the first server is used until it fails then the
next server is used until it fails and so on. Once the end of the server list is reached, then the
algorithm wraps around to the first server and the process repeats.

Multiple goroutines can safely invoke all the Manager interface methods concurrently.
*/
package bestserver
