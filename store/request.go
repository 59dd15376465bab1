package store

// Param is a single bound value, either positional (Index set, Name empty)
// or named (Name set). Type is a lowercase cqltype name ("bigint", "ascii",
// "varchar", ...). On a Matcher, Value == Wildcard matches any actual value
// of the declared Type.
type Param struct {
	Name  string
	Index int
	Type  string
	Value interface{}
}

// Wildcard is the sentinel expected-value that matches any actual value.
const Wildcard = "*"

// DecodeFunc turns a bound value's raw wire bytes into a Go-native value
// comparable against a Matcher's declared Param.Value, per the named cql
// type. store never imports the wire codec or cqltype itself; transport
// supplies this function (backed by cqltype.Decode) so Requests built from
// real frames can carry untyped wire bytes until match time.
type DecodeFunc func(typeName string, raw []byte) (interface{}, error)

// Request is a codec-agnostic description of an incoming frame, built by
// the transport package from the decoded message so that store never needs
// to import the wire codec.
//
// For Execute, the caller (transport, via its prepared-statement cache) has
// already resolved the prepared id back to the original query text and
// fills QueryString accordingly; Kind stays KindExecute so activity logging
// can tell the two apart, but matching treats it like a Query.
//
// Params normally carry already-comparable Go values (as built directly by
// tests or by an in-process caller). When built from a live wire frame,
// whose bound values have no self-describing type, Params instead carry
// raw []byte contents and Decode is set so paramsMatch can interpret each
// one per the candidate prime's declared Type.
type Request struct {
	Kind        Kind
	QueryString string
	Consistency string
	Params      []Param
	PreparedID  string
	Decode      DecodeFunc
}

func findParam(params []Param, p Param) (Param, bool) {
	for _, a := range params {
		if p.Name != "" {
			if a.Name == p.Name {
				return a, true
			}
			continue
		}
		if a.Index == p.Index {
			return a, true
		}
	}
	return Param{}, false
}
