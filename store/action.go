package store

// ActionKind tags one step of a Prime's response plan.
type ActionKind string

const (
	ActionRespond     ActionKind = "respond"
	ActionNoResponse  ActionKind = "no_response"
	ActionDisconnect  ActionKind = "disconnect"
)

// DisconnectScope is the set of channels an ActionDisconnect closes.
type DisconnectScope string

const (
	ScopeConnection  DisconnectScope = "connection"
	ScopeNode        DisconnectScope = "node"
	ScopeDataCenter  DisconnectScope = "data_center"
	ScopeCluster     DisconnectScope = "cluster"
)

// DisconnectHow is the method used to close the indicated channels.
// ShutdownRead/ShutdownWrite fall back to Disconnect on non-socket
// channels, per §4.3.
type DisconnectHow string

const (
	Disconnect     DisconnectHow = "disconnect"
	ShutdownRead   DisconnectHow = "shutdown_read"
	ShutdownWrite  DisconnectHow = "shutdown_write"
)

// Action is one step of a Prime's "then" list. DelayMs, if non-zero, is
// waited out before the step's effect (response send or disconnect) is
// applied.
type Action struct {
	Kind             ActionKind
	DelayMs          int64
	Response         ResponseSpec
	DisconnectScope  DisconnectScope
	DisconnectHow    DisconnectHow
}

// ResponseKind names the shape of a canned response, independent of the
// wire codec that eventually encodes it.
type ResponseKind string

const (
	RespVoid             ResponseKind = "void"
	RespRows             ResponseKind = "rows"
	RespSetKeyspace      ResponseKind = "set_keyspace"
	RespReady            ResponseKind = "ready"
	RespSupported        ResponseKind = "supported"
	RespPrepared         ResponseKind = "prepared"
	RespUnavailable      ResponseKind = "unavailable"
	RespReadTimeout      ResponseKind = "read_timeout"
	RespWriteTimeout     ResponseKind = "write_timeout"
	RespReadFailure      ResponseKind = "read_failure"
	RespWriteFailure     ResponseKind = "write_failure"
	RespServerError      ResponseKind = "server_error"
	RespUnprepared       ResponseKind = "unprepared"
	RespOverloaded       ResponseKind = "overloaded"
	RespInvalid          ResponseKind = "invalid"
	RespConfigError      ResponseKind = "config_error"
	RespAlreadyExists    ResponseKind = "already_exists"
	RespFunctionFailure  ResponseKind = "function_failure"
	RespTruncateError    ResponseKind = "truncate_error"
	RespSyntaxError      ResponseKind = "syntax_error"
	RespUnauthorized     ResponseKind = "unauthorized"
	RespIsBootstrapping  ResponseKind = "is_bootstrapping"
	RespProtocolError    ResponseKind = "protocol_error"
	RespAuthError        ResponseKind = "authentication_error"
)

// ColumnSpec names and types one column of a RespRows response.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     string // cqltype name, e.g. "varchar", "bigint", "uuid"
}

// ResponseSpec is the codec-agnostic description of a message a Respond
// action sends back to the client. transport/dispatch.go translates one of
// these into the datastax message.Message that actually goes on the wire.
type ResponseSpec struct {
	Kind ResponseKind

	// RespSetKeyspace
	Keyspace string

	// RespRows
	Columns []ColumnSpec
	Rows    [][]interface{}

	// RespPrepared / RespUnprepared
	PreparedID string

	// RespSupported
	Options map[string][]string

	// error family (Unavailable/ReadTimeout/WriteTimeout/*Failure/ServerError/...)
	Message        string
	Consistency    string
	Required       int32
	Alive          int32
	Received       int32
	BlockFor       int32
	WriteType      string
	FailureReasons map[string]int32
}
