package eventframe

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known Metadata keys, written by the store on every read and
// consulted by Metadata.Follow.
const (
	MetaStreamName                   = "stream_name"
	MetaPosition                      = "position"
	MetaGlobalPosition                = "global_position"
	MetaTime                          = "time"
	MetaCausationMessageStreamName    = "causation_message_stream_name"
	MetaCausationMessagePosition      = "causation_message_position"
	MetaCausationMessageGlobalPosition = "causation_message_global_position"
	MetaCorrelationStreamName         = "correlation_stream_name"
	MetaReplyStreamName               = "reply_stream_name"
)

// Metadata is a free-form string->JSON mapping carried alongside every
// message. The well-known keys above are ordinary entries in this map,
// which keeps the wire representation a single JSON object merging
// declared and extra keys.
type Metadata map[string]json.RawMessage

// NewMetadata returns an empty, non-nil Metadata map.
func NewMetadata() Metadata {
	return Metadata{}
}

func (m Metadata) setString(key, value string) {
	b, _ := json.Marshal(value)
	m[key] = b
}

func (m Metadata) setInt64(key string, value int64) {
	b, _ := json.Marshal(value)
	m[key] = b
}

func (m Metadata) getString(key string) (string, bool) {
	raw, ok := m[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func (m Metadata) getInt64(key string) (int64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// StreamName returns the stream_name entry, if present.
func (m Metadata) StreamName() (StreamName, bool) {
	s, ok := m.getString(MetaStreamName)
	return StreamName(s), ok
}

// SetStreamName sets the stream_name entry.
func (m Metadata) SetStreamName(s StreamName) { m.setString(MetaStreamName, string(s)) }

// Position returns the stream position entry, if present.
func (m Metadata) Position() (int64, bool) { return m.getInt64(MetaPosition) }

// SetPosition sets the stream position entry.
func (m Metadata) SetPosition(p int64) { m.setInt64(MetaPosition, p) }

// GlobalPosition returns the global_position entry, if present.
func (m Metadata) GlobalPosition() (int64, bool) { return m.getInt64(MetaGlobalPosition) }

// SetGlobalPosition sets the global_position entry.
func (m Metadata) SetGlobalPosition(p int64) { m.setInt64(MetaGlobalPosition, p) }

// Time returns the time entry, if present and parseable as RFC3339.
func (m Metadata) Time() (time.Time, bool) {
	s, ok := m.getString(MetaTime)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime sets the time entry.
func (m Metadata) SetTime(t time.Time) { m.setString(MetaTime, t.Format(time.RFC3339Nano)) }

// CorrelationStreamName returns the correlation_stream_name entry, if present.
func (m Metadata) CorrelationStreamName() (string, bool) {
	return m.getString(MetaCorrelationStreamName)
}

// SetCorrelationStreamName sets the correlation_stream_name entry.
func (m Metadata) SetCorrelationStreamName(s string) { m.setString(MetaCorrelationStreamName, s) }

// ReplyStreamName returns the reply_stream_name entry, if present.
func (m Metadata) ReplyStreamName() (string, bool) { return m.getString(MetaReplyStreamName) }

// SetReplyStreamName sets the reply_stream_name entry.
func (m Metadata) SetReplyStreamName(s string) { m.setString(MetaReplyStreamName, s) }

// positionalKeys are stripped by Follow: the keys that describe *this*
// message's own position in its own stream, which a derived message must
// not inherit.
var positionalKeys = []string{
	MetaStreamName, MetaPosition, MetaGlobalPosition, MetaTime,
}

// Follow copies the receiver, dropping stream_name and the positional keys,
// and setting the causation/correlation chain to point at the parent. It
// preserves any correlation_stream_name already present in the parent,
// or seeds one from the parent's stream_name if the parent had none.
func (m Metadata) Follow() Metadata {
	child := make(Metadata, len(m))
	for k, v := range m {
		child[k] = v
	}
	for _, k := range positionalKeys {
		delete(child, k)
	}

	if parentStream, ok := m.StreamName(); ok {
		child.setString(MetaCausationMessageStreamName, string(parentStream))
		if _, hasCorrelation := m.CorrelationStreamName(); !hasCorrelation {
			child.SetCorrelationStreamName(string(parentStream))
		}
	}
	if pos, ok := m.Position(); ok {
		child.setInt64(MetaCausationMessagePosition, pos)
	}
	if gpos, ok := m.GlobalPosition(); ok {
		child.setInt64(MetaCausationMessageGlobalPosition, gpos)
	}
	return child
}

// MarshalForWrite returns the JSON representation to send to write_message:
// an object if non-empty, else JSON null.
func (m Metadata) MarshalForWrite() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]json.RawMessage(m))
}

// MessageData is the wire-format record read from, and written to, the
// message store.
type MessageData struct {
	TypeName string   `json:"type"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// MessageType is implemented by domain message payload types. TypeName
// is the Go substitute for the Rust associated constant TYPE_NAME: the
// unique identifier used to route messages to handlers and projections.
type MessageType interface {
	TypeName() string
}

// Msg is a typed envelope around a MessageType payload plus its Metadata.
type Msg[T MessageType] struct {
	Data     T
	Metadata Metadata
}

// ErrTypeMismatch is returned by MsgFromData when a MessageData's type_name
// does not match the envelope's expected MessageType.
type ErrTypeMismatch struct {
	Expected string
	Actual   string
}

func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("eventframe: type mismatch: expected %q, got %q", e.Expected, e.Actual)
}

// MsgFromData deserializes a MessageData into a typed Msg[T], failing with
// *ErrTypeMismatch if the type names disagree.
func MsgFromData[T MessageType](md MessageData) (Msg[T], error) {
	var zero T
	if md.TypeName != zero.TypeName() {
		return Msg[T]{}, &ErrTypeMismatch{Expected: zero.TypeName(), Actual: md.TypeName}
	}
	var data T
	if err := json.Unmarshal(md.Data, &data); err != nil {
		return Msg[T]{}, &Error{Kind: KindDeserialization, Op: "MsgFromData", Err: err}
	}
	return Msg[T]{Data: data, Metadata: md.Metadata}, nil
}

// ToMessageData serializes a Msg[T] back into a MessageData, ready for
// Write. The caller's metadata is used as-is (typically already produced
// via Follow).
func ToMessageData[T MessageType](msg Msg[T]) (MessageData, error) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return MessageData{}, &Error{Kind: KindOther, Op: "ToMessageData", Err: err}
	}
	meta := msg.Metadata
	if meta == nil {
		meta = NewMetadata()
	}
	return MessageData{
		TypeName: msg.Data.TypeName(),
		Data:     data,
		Metadata: meta,
	}, nil
}

// FollowMsg constructs a derivative message from a parent message, copying
// followed metadata — the idiom that preserves causation/correlation
// chains across a dispatch.
func FollowMsg[T MessageType](parent Metadata, data T) Msg[T] {
	return Msg[T]{Data: data, Metadata: parent.Follow()}
}
