package store

// Prime is a registered (matcher, actions, scope) triple that tells a
// simulated node how to answer a class of requests.
type Prime struct {
	ID       uint64
	Scope    Selector
	Matcher  Matcher
	Then     []Action
	Internal bool // installed by the engine itself (auto-prime, system tables)
}
