/*
Package health provides liveness/reachability checks for notesd's external
collaborators: the OSM Notes API, Overpass, and the Postgres connection.

Three checker kinds share one Checker interface:

	HTTPChecker  — bounded GET against an HTTP endpoint (the API liveness
	               probe in spec §4.9 step 1, and the InternetIssue self-heal
	               gate in spec §4.2/§7)
	TCPChecker   — raw TCP dial, used for a cheap Postgres/Overpass
	               reachability check before a retry-wrapped operation
	ExecChecker  — runs a subprocess to completion; both a "is the external
	               geometry importer on PATH" startup check and the shape
	               the Boundary Manager's actual importer invocation follows

A Status tracks consecutive failures/successes for a target across checks,
crossing into Healthy=false only once ConsecutiveFailures reaches
Config.Retries — the same debounce the Daemon Loop's circuit breaker uses at
a coarser grain (whole cycles, not individual probes).
*/
package health
