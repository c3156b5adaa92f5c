package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is one inbound JSON object. Type holds its "type" discriminant
// and Raw the complete object, discriminant included.
type Message struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the whole message into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// Get looks up a field of the message using gjson path syntax.
func (m Message) Get(path string) gjson.Result {
	return gjson.GetBytes(m.Raw, path)
}

// MarshalJSON returns the raw message so a received Message can be sent on
// unchanged.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) == 0 {
		return nil, errors.New("empty message")
	}
	return m.Raw, nil
}

func (m Message) String() string {
	return string(m.Raw)
}

var (
	errMalformedJSON = errors.New("malformed JSON")
	errNotObject     = errors.New("message is not a JSON object")
	errMissingType   = errors.New(`missing "type" field`)
	errTypeNotString = errors.New(`"type" field is not a non-empty string`)
)

// readMessage reassembles the chunks of one logical message in the order
// the transport delivers them.
func readMessage(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMessage validates data as a message object and extracts its
// discriminant.
func decodeMessage(data []byte) (Message, error) {
	typ, err := discriminant(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Raw: json.RawMessage(data)}, nil
}

func discriminant(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", errMalformedJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", errNotObject
	}
	t := root.Get("type")
	if !t.Exists() {
		return "", errMissingType
	}
	if t.Type != gjson.String || t.Str == "" {
		return "", errTypeNotString
	}
	return t.Str, nil
}

// encodeMessage marshals msg and checks it carries a discriminant.
// Pre-encoded []byte and json.RawMessage values are validated as is.
func encodeMessage(msg any) ([]byte, error) {
	var data []byte
	switch m := msg.(type) {
	case nil:
		return nil, &Error{Code: CodeInvalidMessage, Op: "encode", Err: errors.New("nil message")}
	case []byte:
		data = append([]byte(nil), m...)
	case json.RawMessage:
		data = append([]byte(nil), m...)
	default:
		var err error
		data, err = json.Marshal(msg)
		if err != nil {
			return nil, &Error{Code: CodeInvalidMessage, Op: "encode", Err: err}
		}
	}

	if _, err := discriminant(data); err != nil {
		return nil, &Error{Code: CodeInvalidMessage, Op: "encode", Err: fmt.Errorf("%w: %s", err, truncate(data, 64))}
	}
	return data, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
