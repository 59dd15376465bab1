package transport

import (
	"regexp"
	"strings"

	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"

	"github.com/bjmb/simulacron-go/cqltype"
	"github.com/bjmb/simulacron-go/store"
)

// toRequest extracts a codec-agnostic store.Request from a decoded message,
// resolving Execute's prepared id back to its original query text via
// prepared. ok is false for an Execute whose prepared id is unknown and for
// message kinds the engine does not match on at all (anything outside
// Startup/Register/Options/Query/Prepare/Execute/Batch); Node.dispatch
// answers the former with Unprepared and sends nothing for the latter.
func toRequest(msg message.Message, prepared *preparedCache) (store.Request, bool) {
	switch m := msg.(type) {
	case *message.Startup:
		return store.Request{Kind: store.KindStartup}, true
	case *message.Register:
		return store.Request{Kind: store.KindStartup}, true
	case *message.Options:
		return store.Request{Kind: store.KindOptions}, true
	case *message.Query:
		return store.Request{
			Kind:        store.KindQuery,
			QueryString: m.Query,
			Consistency: consistencyName(queryConsistency(m)),
			Params:      queryParams(m),
			Decode:      decodeParam,
		}, true
	case *message.Prepare:
		return store.Request{Kind: store.KindPrepare, QueryString: m.Query}, true
	case *message.Execute:
		query, found := prepared.resolve(m.QueryId)
		if !found {
			return store.Request{}, false
		}
		return store.Request{
			Kind:        store.KindExecute,
			QueryString: query,
			Consistency: consistencyName(executeConsistency(m)),
			Params:      executeParams(m),
			PreparedID:  string(m.QueryId),
			Decode:      decodeParam,
		}, true
	case *message.Batch:
		return store.Request{Kind: store.KindBatch}, true
	default:
		return store.Request{}, false
	}
}

func queryConsistency(m *message.Query) primitive.ConsistencyLevel {
	if m.Options == nil {
		return primitive.ConsistencyLevelOne
	}
	return m.Options.Consistency
}

func executeConsistency(m *message.Execute) primitive.ConsistencyLevel {
	if m.Options == nil {
		return primitive.ConsistencyLevelOne
	}
	return m.Options.Consistency
}

// consistencyRevNames is the inverse of respond.go's consistencyNames, used
// to turn an incoming request's consistency level back into the lowercase
// name a Matcher.Consistencies entry is written in.
var consistencyRevNames = map[primitive.ConsistencyLevel]string{
	primitive.ConsistencyLevelAny:         "any",
	primitive.ConsistencyLevelOne:         "one",
	primitive.ConsistencyLevelTwo:         "two",
	primitive.ConsistencyLevelThree:       "three",
	primitive.ConsistencyLevelQuorum:      "quorum",
	primitive.ConsistencyLevelAll:         "all",
	primitive.ConsistencyLevelLocalQuorum: "local_quorum",
	primitive.ConsistencyLevelEachQuorum:  "each_quorum",
	primitive.ConsistencyLevelSerial:      "serial",
	primitive.ConsistencyLevelLocalSerial: "local_serial",
	primitive.ConsistencyLevelLocalOne:    "local_one",
}

func consistencyName(c primitive.ConsistencyLevel) string {
	if name, ok := consistencyRevNames[c]; ok {
		return name
	}
	return "one"
}

func queryParams(m *message.Query) []store.Param {
	if m.Options == nil {
		return nil
	}
	return valueParams(m.Options.PositionalValues, m.Options.NamedValues)
}

func executeParams(m *message.Execute) []store.Param {
	if m.Options == nil {
		return nil
	}
	return valueParams(m.Options.PositionalValues, m.Options.NamedValues)
}

// valueParams flattens positional/named bound values into store.Params
// carrying raw wire bytes; the protocol's bound values are untyped byte
// strings (the type lives in the prepared statement's metadata, which this
// simulator does not track independently of the prime that declares it),
// so Type is left empty and Value holds []byte until store.paramsMatch
// calls decodeParam against whichever prime's declared Type it is
// currently comparing against.
func valueParams(positional []*primitive.Value, named map[string]*primitive.Value) []store.Param {
	var params []store.Param
	for i, v := range positional {
		params = append(params, store.Param{Index: i, Value: rawContents(v)})
	}
	for name, v := range named {
		params = append(params, store.Param{Name: name, Value: rawContents(v)})
	}
	return params
}

func rawContents(v *primitive.Value) []byte {
	if v == nil {
		return nil
	}
	return v.Contents
}

// decodeParam adapts cqltype.Decode to store.DecodeFunc.
func decodeParam(typeName string, raw []byte) (interface{}, error) {
	return cqltype.Decode(cqltype.Name(typeName), raw)
}

// defaultResponse implements the minimal-viable-database table from
// spec.md §4.3 for requests no prime matched.
func defaultResponse(req store.Request) *store.ResponseSpec {
	switch req.Kind {
	case store.KindStartup:
		return &store.ResponseSpec{Kind: store.RespReady}
	case store.KindOptions:
		return &store.ResponseSpec{
			Kind: store.RespSupported,
			Options: map[string][]string{
				"PROTOCOL_VERSIONS": {"3/v3", "4/v4", "5/v5-beta"},
				"CQL_VERSION":       {"3.4.4"},
				"COMPRESSION":       {"snappy", "lz4"},
			},
		}
	case store.KindQuery, store.KindBatch:
		if isUseKeyspace(req.QueryString) {
			return &store.ResponseSpec{Kind: store.RespSetKeyspace, Keyspace: useKeyspaceName(req.QueryString)}
		}
		return &store.ResponseSpec{Kind: store.RespVoid}
	case store.KindExecute:
		return &store.ResponseSpec{Kind: store.RespUnprepared, PreparedID: req.PreparedID, Message: unpreparedMessage([]byte(req.PreparedID))}
	default:
		return nil
	}
}

func isUseKeyspace(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(q, "use ")
}

func useKeyspaceName(query string) string {
	q := strings.TrimSpace(query)
	fields := strings.Fields(q)
	if len(fields) < 2 {
		return ""
	}
	return strings.Trim(fields[1], "\";")
}

// namedBindMarker matches a "word = :name" style named bind marker, the
// shape spec.md §4.3 names for inferring an auto-prime's parameter
// skeleton when the query has no positional "?" markers.
var namedBindMarker = regexp.MustCompile(`(?i)\w+\s*=\s*:(\w+)`)

// autoPrimeParams infers the wildcard parameter skeleton a freshly
// Prepare'd query gets auto-primed with, per spec.md §4.3: indexed
// "0","1",... of type varchar if the query has positional "?" markers,
// else named parameters scanned from ":name" bind markers. Either way
// every value is the wildcard, so any bound value matches.
func autoPrimeParams(query string) []store.Param {
	if n := strings.Count(query, "?"); n > 0 {
		params := make([]store.Param, n)
		for i := range params {
			params[i] = store.Param{Index: i, Type: "varchar", Value: store.Wildcard}
		}
		return params
	}

	matches := namedBindMarker.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return nil
	}
	params := make([]store.Param, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		params = append(params, store.Param{Name: name, Type: "varchar", Value: store.Wildcard})
	}
	return params
}
