package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds a single line-framed command. send_data carries whole
// documents, so the limit is generous.
const maxLineBytes = 64 << 20

// lineRequest is the wire shape of one line-framed command.
type lineRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// LineDecoder reads one JSON object per line: {"method": m, "params": [...]}.
type LineDecoder struct {
	scanner *bufio.Scanner
}

func NewLineDecoder(r io.Reader) *LineDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &LineDecoder{scanner: scanner}
}

func (d *LineDecoder) Decode() (Command, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req lineRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if req.Method == "" {
			return Command{}, fmt.Errorf("%w: missing method", ErrMalformed)
		}

		return Command{Method: req.Method, Params: req.Params}, nil
	}

	if err := d.scanner.Err(); err != nil {
		return Command{}, err
	}
	return Command{}, io.EOF
}

// rpcRequest is the body element of one RPC-framed command.
type rpcRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// RPCDecoder reads a stream of JSON-RPC style frames: [id, {"method": m,
// "params": [...]}]. Frames are not line-delimited; the JSON values follow
// each other directly on the stream.
type RPCDecoder struct {
	dec *json.Decoder
}

func NewRPCDecoder(r io.Reader) *RPCDecoder {
	return &RPCDecoder{dec: json.NewDecoder(r)}
}

func (d *RPCDecoder) Decode() (Command, error) {
	var frame []json.RawMessage
	if err := d.dec.Decode(&frame); err != nil {
		if err == io.EOF {
			return Command{}, io.EOF
		}
		// A syntax error poisons the stream position, so it ends this
		// controller connection rather than being skippable.
		return Command{}, err
	}

	if len(frame) != 2 {
		return Command{}, fmt.Errorf("%w: expected [id, request], got %d elements", ErrMalformed, len(frame))
	}

	var id int64
	if err := json.Unmarshal(frame[0], &id); err != nil {
		return Command{}, fmt.Errorf("%w: bad request id: %v", ErrMalformed, err)
	}

	var req rpcRequest
	if err := json.Unmarshal(frame[1], &req); err != nil {
		return Command{}, fmt.Errorf("%w: bad request body: %v", ErrMalformed, err)
	}
	if req.Method == "" {
		return Command{}, fmt.Errorf("%w: missing method", ErrMalformed)
	}

	return Command{ID: id, Method: req.Method, Params: req.Params}, nil
}
