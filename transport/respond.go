package transport

import (
	"strings"

	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"

	"github.com/bjmb/simulacron-go/cqltype"
	"github.com/bjmb/simulacron-go/store"
)

// toMessage translates a codec-agnostic store.ResponseSpec into the
// datastax message the wire codec encodes. This is the one direction of
// the store<->wire boundary transport owns; the other is toRequest.
func toMessage(spec store.ResponseSpec) (message.Message, error) {
	switch spec.Kind {
	case store.RespVoid:
		return &message.VoidResult{}, nil
	case store.RespReady:
		return &message.Ready{}, nil
	case store.RespSetKeyspace:
		return &message.SetKeyspaceResult{Keyspace: spec.Keyspace}, nil
	case store.RespSupported:
		return &message.Supported{Options: spec.Options}, nil
	case store.RespRows:
		return rowsMessage(spec)
	case store.RespPrepared:
		return &message.PreparedResult{PreparedQueryId: []byte(spec.PreparedID)}, nil
	case store.RespUnprepared:
		return &message.Unprepared{ErrorMessage: spec.Message, Id: []byte(spec.PreparedID)}, nil
	case store.RespUnavailable:
		return &message.Unavailable{
			ErrorMessage: spec.Message,
			Consistency:  consistencyLevel(spec.Consistency),
			Required:     spec.Required,
			Alive:        spec.Alive,
		}, nil
	case store.RespReadTimeout:
		return &message.ReadTimeout{
			ErrorMessage: spec.Message,
			Consistency:  consistencyLevel(spec.Consistency),
			Received:     spec.Received,
			BlockFor:     spec.BlockFor,
		}, nil
	case store.RespWriteTimeout:
		return &message.WriteTimeout{
			ErrorMessage: spec.Message,
			Consistency:  consistencyLevel(spec.Consistency),
			Received:     spec.Received,
			BlockFor:     spec.BlockFor,
			WriteType:    writeType(spec.WriteType),
		}, nil
	case store.RespReadFailure:
		return &message.ReadFailure{
			ErrorMessage: spec.Message,
			Consistency:  consistencyLevel(spec.Consistency),
			Received:     spec.Received,
			BlockFor:     spec.BlockFor,
			NumFailures:  int32(len(spec.FailureReasons)),
		}, nil
	case store.RespWriteFailure:
		return &message.WriteFailure{
			ErrorMessage: spec.Message,
			Consistency:  consistencyLevel(spec.Consistency),
			Received:     spec.Received,
			BlockFor:     spec.BlockFor,
			NumFailures:  int32(len(spec.FailureReasons)),
			WriteType:    writeType(spec.WriteType),
		}, nil
	case store.RespServerError:
		return &message.ServerError{ErrorMessage: spec.Message}, nil
	case store.RespOverloaded:
		return &message.Overloaded{ErrorMessage: spec.Message}, nil
	case store.RespInvalid:
		return &message.Invalid{ErrorMessage: spec.Message}, nil
	case store.RespConfigError:
		return &message.ConfigError{ErrorMessage: spec.Message}, nil
	case store.RespAlreadyExists:
		return &message.AlreadyExists{ErrorMessage: spec.Message}, nil
	case store.RespFunctionFailure:
		return &message.FunctionFailure{ErrorMessage: spec.Message}, nil
	case store.RespTruncateError:
		return &message.TruncateError{ErrorMessage: spec.Message}, nil
	case store.RespSyntaxError:
		return &message.SyntaxError{ErrorMessage: spec.Message}, nil
	case store.RespUnauthorized:
		return &message.Unauthorized{ErrorMessage: spec.Message}, nil
	case store.RespIsBootstrapping:
		return &message.IsBootstrapping{ErrorMessage: spec.Message}, nil
	case store.RespProtocolError:
		return &message.ProtocolError{ErrorMessage: spec.Message}, nil
	case store.RespAuthError:
		return &message.AuthenticationError{ErrorMessage: spec.Message}, nil
	default:
		return &message.VoidResult{}, nil
	}
}

func rowsMessage(spec store.ResponseSpec) (message.Message, error) {
	cols := make([]*message.ColumnMetadata, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		cm, err := cqltype.ColumnMetadata(c.Keyspace, c.Table, c.Name, cqltype.Name(c.Type))
		if err != nil {
			return nil, err
		}
		cols = append(cols, cm)
	}

	rows := make(message.RowSet, 0, len(spec.Rows))
	for _, r := range spec.Rows {
		row := make(message.Row, 0, len(r))
		for i, v := range r {
			typ := ""
			if i < len(spec.Columns) {
				typ = spec.Columns[i].Type
			}
			col, err := cqltype.Encode(cqltype.Name(typ), v)
			if err != nil {
				return nil, err
			}
			row = append(row, col)
		}
		rows = append(rows, row)
	}

	return &message.RowsResult{
		Metadata: &message.RowsMetadata{ColumnCount: int32(len(cols)), Columns: cols},
		Data:     rows,
	}, nil
}

// consistencyNames maps the lowercase names primes/requests use onto the
// protocol's consistency level constants.
var consistencyNames = map[string]primitive.ConsistencyLevel{
	"any":          primitive.ConsistencyLevelAny,
	"one":          primitive.ConsistencyLevelOne,
	"two":          primitive.ConsistencyLevelTwo,
	"three":        primitive.ConsistencyLevelThree,
	"quorum":       primitive.ConsistencyLevelQuorum,
	"all":          primitive.ConsistencyLevelAll,
	"local_quorum": primitive.ConsistencyLevelLocalQuorum,
	"each_quorum":  primitive.ConsistencyLevelEachQuorum,
	"serial":       primitive.ConsistencyLevelSerial,
	"local_serial": primitive.ConsistencyLevelLocalSerial,
	"local_one":    primitive.ConsistencyLevelLocalOne,
}

func consistencyLevel(name string) primitive.ConsistencyLevel {
	if cl, ok := consistencyNames[strings.ToLower(name)]; ok {
		return cl
	}
	return primitive.ConsistencyLevelOne
}

var writeTypeNames = map[string]primitive.WriteType{
	"simple":           primitive.WriteTypeSimple,
	"batch":            primitive.WriteTypeBatch,
	"unlogged_batch":   primitive.WriteTypeUnloggedBatch,
	"batch_log":        primitive.WriteTypeBatchLog,
	"cas":              primitive.WriteTypeCas,
	"view":             primitive.WriteTypeView,
	"cdc":              primitive.WriteTypeCdc,
}

func writeType(name string) primitive.WriteType {
	if wt, ok := writeTypeNames[strings.ToLower(name)]; ok {
		return wt
	}
	return primitive.WriteTypeSimple
}
