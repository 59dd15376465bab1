package transport

import "sync"

// RejectScope names what a reject() call does once its counter reaches
// zero, per spec.md §4.4.
type RejectScope string

const (
	RejectNone           RejectScope = "none"
	RejectUnbind         RejectScope = "unbind"
	RejectStop           RejectScope = "stop"
	RejectStartup        RejectScope = "reject_startup"
)

// rejectState is the per-node reject-state record. A single mutex guards
// every field so a reject() racing an accept() resolves deterministically:
// whichever call's Lock() completes last wins, matching spec.md §5's
// "registry mutations appear atomic to readers" extended to this state.
type rejectState struct {
	mu        sync.Mutex
	listening bool
	after     int64 // remaining successful Startups before the scope applies; <0 means infinite
	scope     RejectScope
}

func newRejectState() *rejectState {
	return &rejectState{listening: true, after: -1, scope: RejectNone}
}

// reject configures the node to apply scope once after more Startup/
// Register frames have been let through (after == 0 applies immediately).
func (r *rejectState) reject(after int64, scope RejectScope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after = after
	r.scope = scope
	if after == 0 && (scope == RejectUnbind || scope == RejectStop) {
		r.listening = false
	}
}

// accept resets the node to the default {listening, unlimited, NONE} state.
func (r *rejectState) accept() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listening = true
	r.after = -1
	r.scope = RejectNone
}

// rejectOutcome tells the caller what on_accept/on_startup must do as a
// result of observing (and, for startups, consuming) the current state.
type rejectOutcome struct {
	dropStartup bool // silently ignore this Startup/Register, no Ready
	applyUnbind bool // unbind the listener now
	applyStop   bool // unbind the listener and disconnect all channels now
}

// observeStartup is called once per Startup/Register frame reaching the
// default path. It decrements the counter and returns what the caller must
// now do.
func (r *rejectState) observeStartup() rejectOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scope == RejectStartup && r.after <= 0 {
		return rejectOutcome{dropStartup: true}
	}

	if r.after > 0 {
		r.after--
		if r.after > 0 {
			return rejectOutcome{}
		}
	} else if r.after < 0 {
		return rejectOutcome{}
	}

	switch r.scope {
	case RejectUnbind:
		r.listening = false
		return rejectOutcome{applyUnbind: true}
	case RejectStop:
		r.listening = false
		return rejectOutcome{applyStop: true}
	default:
		// RejectStartup (and RejectNone) let this, the draining call, through
		// normally: the counter has just reached zero, so the *next* Startup
		// will hit the r.after <= 0 guard above and be dropped. This is the
		// same "answer the Nth, drop the (N+1)-th" shape RejectUnbind/
		// RejectStop get for free by applying their transition only after
		// the caller sends Ready.
		return rejectOutcome{}
	}
}

// isListening reports whether the node should currently accept new
// connections at all (false only after an UNBIND/STOP scope has fired).
func (r *rejectState) isListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// dropsStartup reports whether a Startup/Register arriving right now
// should be silently dropped, without consuming the after-counter (checked
// by Node.dispatch for every Startup/Register frame before it goes further).
func (r *rejectState) dropsStartup() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scope == RejectStartup && r.after <= 0
}
