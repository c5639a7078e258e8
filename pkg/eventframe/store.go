package eventframe

import "context"

// ReadOptions configures a GetStream/GetCategory call. BatchSize and
// Position default to sensible values when zero.
type ReadOptions struct {
	Position             int64
	BatchSize            int64
	Condition            string
	MessageType          string
	Correlation          string
	ConsumerGroupMember  *int64
	ConsumerGroupSize    *int64
	Last                 bool
}

// DefaultBatchSize is the batch_size used by GetStream/GetCategory/Read
// when the caller leaves ReadOptions.BatchSize at zero.
const DefaultBatchSize = 1000

// Gateway is the store façade: the public surface shared identically by
// the Actuator (real store calls, store_postgres.go) and the Substitute
// (in-memory test double, store_substitute.go), so application and handler
// code never branches on which one it holds.
type Gateway interface {
	// GetVersion invokes stream_version.
	GetVersion(ctx context.Context, stream StreamName) (Version, error)

	// GetLast invokes get_last_stream_message. messageType may be empty.
	GetLast(ctx context.Context, stream StreamName, messageType string) (*MessageData, error)

	// GetStream invokes get_stream_messages.
	GetStream(ctx context.Context, stream StreamName, opts ReadOptions) ([]MessageData, error)

	// GetCategory invokes get_category_messages.
	GetCategory(ctx context.Context, category StreamName, opts ReadOptions) ([]MessageData, error)

	// Read is a façade over GetCategory/GetLast/GetStream, selected by
	// whether stream carries an id segment and by opts.Last.
	Read(ctx context.Context, stream StreamName, opts ReadOptions) ([]MessageData, error)

	// Write appends messages transactionally with optimistic concurrency
	// control, returning the last assigned stream position.
	Write(ctx context.Context, stream StreamName, messages []MessageData, expectedVersion *Version) (int64, error)
}

// buildCondition composes a user condition with a message_type filter the
// way §4.1 specifies: both present -> "{condition} AND type = {type}";
// only message_type -> "type = {type}"; only condition -> condition as-is.
func buildCondition(condition, messageType string) string {
	switch {
	case condition != "" && messageType != "":
		return condition + " AND type = " + quoteSQLString(messageType)
	case messageType != "":
		return "type = " + quoteSQLString(messageType)
	default:
		return condition
	}
}

func quoteSQLString(s string) string {
	return "'" + s + "'"
}

// resolveBatchSize returns opts.BatchSize or DefaultBatchSize if unset.
func resolveBatchSize(opts ReadOptions) int64 {
	if opts.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return opts.BatchSize
}

// read implements the Read façade shared by both Gateway
// implementations: it inspects the stream name and opts.Last to decide
// which lower-level operation to delegate to. Embedding this in a shared
// helper keeps the Actuator and Substitute's Read behavior identical.
func read(ctx context.Context, g Gateway, stream StreamName, opts ReadOptions) ([]MessageData, error) {
	if _, hasID := stream.StreamID(); !hasID {
		return g.GetCategory(ctx, stream, opts)
	}
	if opts.Last {
		last, err := g.GetLast(ctx, stream, opts.MessageType)
		if err != nil {
			return nil, err
		}
		if last == nil {
			return nil, nil
		}
		return []MessageData{*last}, nil
	}
	return g.GetStream(ctx, stream, opts)
}
