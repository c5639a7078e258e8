package eventframe

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pgGateway is the Actuator: a Gateway implementation that calls the real
// stored procedures over a pgx pool. Write begins a transaction, issues one
// stored-procedure call per buffered message, commits, and classifies any
// failure.
type pgGateway struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewActuator returns the real Gateway implementation, wired to the given
// pool.
func NewActuator(pool *pgxpool.Pool) Gateway {
	return &pgGateway{pool: pool, log: log.With().Str("component", "eventframe.gateway").Logger()}
}

func (g *pgGateway) GetVersion(ctx context.Context, stream StreamName) (Version, error) {
	var version *int64
	err := g.pool.QueryRow(ctx, `SELECT stream_version($1)`, string(stream)).Scan(&version)
	if err != nil {
		return 0, classifyStoreError("GetVersion", err)
	}
	if version == nil {
		return VersionInitial, nil
	}
	return Version(*version), nil
}

func (g *pgGateway) GetLast(ctx context.Context, stream StreamName, messageType string) (*MessageData, error) {
	var mt *string
	if messageType != "" {
		mt = &messageType
	}
	rows, err := g.pool.Query(ctx, `SELECT * FROM get_last_stream_message($1, $2)`, string(stream), mt)
	if err != nil {
		return nil, classifyStoreError("GetLast", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	md, err := scanMessageRow(rows)
	if err != nil {
		return nil, err
	}
	return &md, nil
}

func (g *pgGateway) GetStream(ctx context.Context, stream StreamName, opts ReadOptions) ([]MessageData, error) {
	condition := buildCondition(opts.Condition, opts.MessageType)
	var cond *string
	if condition != "" {
		cond = &condition
	}
	rows, err := g.pool.Query(ctx, `SELECT * FROM get_stream_messages($1, $2, $3, $4)`,
		string(stream), opts.Position, resolveBatchSize(opts), cond)
	if err != nil {
		return nil, classifyStoreError("GetStream", err)
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func (g *pgGateway) GetCategory(ctx context.Context, category StreamName, opts ReadOptions) ([]MessageData, error) {
	condition := buildCondition(opts.Condition, opts.MessageType)
	var cond, corr *string
	if condition != "" {
		cond = &condition
	}
	if opts.Correlation != "" {
		corr = &opts.Correlation
	}
	rows, err := g.pool.Query(ctx, `SELECT * FROM get_category_messages($1, $2, $3, $4, $5, $6, $7)`,
		string(category), opts.Position, resolveBatchSize(opts), corr,
		opts.ConsumerGroupMember, opts.ConsumerGroupSize, cond)
	if err != nil {
		return nil, classifyStoreError("GetCategory", err)
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func (g *pgGateway) Read(ctx context.Context, stream StreamName, opts ReadOptions) ([]MessageData, error) {
	return read(ctx, g, stream, opts)
}

func (g *pgGateway) Write(ctx context.Context, stream StreamName, messages []MessageData, expectedVersion *Version) (int64, error) {
	var lastPosition int64

	operation := func() error {
		tx, err := g.pool.Begin(ctx)
		if err != nil {
			return classifyStoreError("Write", err)
		}
		defer tx.Rollback(ctx)

		expected := expectedVersion
		for _, msg := range messages {
			pos, err := writeOne(ctx, tx, stream, msg, expected)
			if err != nil {
				return classifyStoreError("Write", err)
			}
			lastPosition = pos
			if expected != nil {
				next := expected.Next()
				expected = &next
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return classifyStoreError("Write", err)
		}
		return nil
	}

	// Retry transient pool/acquisition failures only; a classified
	// WrongExpectedVersion or database error is never transient and must
	// surface to the caller immediately.
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	err := backoff.Retry(func() error {
		err := operation()
		if err != nil && !IsKind(err, KindPool) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)

	if err != nil {
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			return 0, perr.Err
		}
		return 0, err
	}
	return lastPosition, nil
}

func writeOne(ctx context.Context, tx pgx.Tx, stream StreamName, msg MessageData, expectedVersion *Version) (int64, error) {
	id := uuid.NewString()
	data := []byte(msg.Data)
	metaJSON, err := msg.Metadata.MarshalForWrite()
	if err != nil {
		return 0, err
	}
	var expected *int64
	if expectedVersion != nil {
		v := int64(*expectedVersion)
		expected = &v
	}

	var position int64
	err = tx.QueryRow(ctx, `SELECT write_message($1, $2, $3, $4, $5, $6)`,
		id, string(stream), msg.TypeName, data, metaJSON, expected).Scan(&position)
	if err != nil {
		return 0, err
	}
	return position, nil
}

// messageRow mirrors the stored procedures' result row shape: type,
// stream_name, position, global_position, time, metadata, data.
type messageRow struct {
	Type           string
	StreamName     string
	Position       int64
	GlobalPosition int64
	Time           time.Time
	Metadata       []byte
	Data           []byte
}

func scanMessageRows(rows pgx.Rows) ([]MessageData, error) {
	var out []MessageData
	for rows.Next() {
		md, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError("scanMessageRows", err)
	}
	return out, nil
}

func scanMessageRow(rows pgx.Rows) (MessageData, error) {
	var row messageRow
	if err := rows.Scan(&row.Type, &row.StreamName, &row.Position, &row.GlobalPosition, &row.Time, &row.Metadata, &row.Data); err != nil {
		return MessageData{}, classifyStoreError("scanMessageRow", err)
	}

	meta := NewMetadata()
	if len(row.Metadata) > 0 && string(row.Metadata) != "null" {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return MessageData{}, &Error{Kind: KindDeserialization, Op: "scanMessageRow", Err: err}
		}
	}
	// The row's own positional columns are always copied into Metadata
	// under their well-known keys, so handlers can read them via the
	// accessor methods regardless of what the stored metadata contained.
	meta.SetStreamName(StreamName(row.StreamName))
	meta.SetPosition(row.Position)
	meta.SetGlobalPosition(row.GlobalPosition)
	meta.SetTime(row.Time)

	return MessageData{
		TypeName: row.Type,
		Data:     row.Data,
		Metadata: meta,
	}, nil
}

func isPoolError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgxpool.ErrClosedPool) || errors.Is(err, context.Canceled)
}
