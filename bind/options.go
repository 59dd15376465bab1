package bind

import (
	"time"

	"github.com/bjmb/simulacron-go/addr"
)

// DefaultBindTimeout is the total budget Register gives itself to bind every
// node in a cluster before rolling back, per spec.md §4.5.
const DefaultBindTimeout = 10 * time.Second

// RegisterOptions configures a single Register call, following the
// functional-option shape the teacher's gocql.ClusterConfig builder uses for
// optional per-call settings.
type RegisterOptions struct {
	resolver        addr.Resolver
	bindTimeout     time.Duration
	activityLogging bool
}

// RegisterOption mutates a RegisterOptions.
type RegisterOption func(*RegisterOptions)

func defaultRegisterOptions() *RegisterOptions {
	return &RegisterOptions{
		bindTimeout:     DefaultBindTimeout,
		activityLogging: true,
	}
}

// WithResolver overrides the addr.Resolver used for nodes registered without
// an explicit address. Defaults to the Manager's own resolver.
func WithResolver(r addr.Resolver) RegisterOption {
	return func(o *RegisterOptions) { o.resolver = r }
}

// WithBindTimeout overrides DefaultBindTimeout for this Register call.
func WithBindTimeout(d time.Duration) RegisterOption {
	return func(o *RegisterOptions) { o.bindTimeout = d }
}

// WithActivityLogging toggles whether the registered cluster records an
// activity log at all; defaults to enabled.
func WithActivityLogging(enabled bool) RegisterOption {
	return func(o *RegisterOptions) { o.activityLogging = enabled }
}
