package transport

import (
	"io"

	"github.com/datastax/go-cassandra-native-protocol/frame"
)

// wireCodec is the trusted external frame codec spec.md §1 calls for: it
// turns bytes read off a socket into a *frame.Frame carrying a typed
// message.Message, and serializes one back onto a socket. transport never
// reimplements CQL framing itself.
var wireCodec = frame.NewCodec()

func readFrame(r io.Reader) (*frame.Frame, error) {
	f, err := wireCodec.DecodeFrame(r)
	if err != nil {
		return nil, &CodecError{Op: "decode frame", Err: err}
	}
	return f, nil
}

func writeFrame(w io.Writer, f *frame.Frame) error {
	if err := wireCodec.EncodeFrame(f, w); err != nil {
		return &CodecError{Op: "encode frame", Err: err}
	}
	return nil
}
