// Package reconcile decides, per check cycle, which notification to emit and
// which status message (if any) to keep tracking.
//
// The engine is pure: it never talks to the network. Callers execute the
// returned Action and feed the outcome back through Resolve.
//
// Lifecycle of the tracked status message:
//
//	unset --Found+send ok--> {M} --Found+edit ok--> {M}
//	{M}   --Found+edit fail--> fallback send --ok--> {M2}
//	any   --NotFound/FetchError--> unset
package reconcile
