package eventframe

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.jetify.com/typeid"
)

// ConsumerGroup shards category consumption across a fixed number of
// members: each message is delivered to exactly the
// member matching hash(stream_id) mod Size == Member at the store.
type ConsumerGroup struct {
	Size   int64
	Member int64
}

// ConsumerOptions is the Consumer configuration surface, rendered as a
// plain struct with sensible defaults applied by NewConsumer.
type ConsumerOptions struct {
	Identifier             string
	Correlation            string
	BatchSize              int64
	PollInterval           time.Duration
	PositionUpdateInterval int
	Group                  *ConsumerGroup
	Strict                 bool
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.PositionUpdateInterval <= 0 {
		o.PositionUpdateInterval = 100
	}
	return o
}

// Consumer owns a handler set, tails one category via a Subscription, and
// records its position back into the store.
type Consumer[Settings any] struct {
	id       string
	category StreamName
	handlers *HandlerCollection[Settings]
	opts     ConsumerOptions
	log      zerolog.Logger

	positionUpdateCounter int
}

// NewConsumer builds a Consumer over category using handlers, applying
// ConsumerOptions defaults.
func NewConsumer[Settings any](category StreamName, handlers *HandlerCollection[Settings], opts ConsumerOptions) *Consumer[Settings] {
	opts = opts.withDefaults()
	tid, err := typeid.WithPrefix("consumer")
	id := "consumer"
	if err == nil {
		id = tid.String()
	}
	return &Consumer[Settings]{
		id:       id,
		category: category,
		handlers: handlers,
		opts:     opts,
		log:      log.With().Str("component", "eventframe.consumer").Str("consumer_id", id).Str("category", string(category)).Logger(),
	}
}

func (c *Consumer[Settings]) positionStreamName() StreamName {
	return PositionStreamName(c.category, c.opts.Identifier)
}

// getPosition reads the last Recorded.position from this Consumer's
// position stream, or 0 if none exists yet.
func (c *Consumer[Settings]) getPosition(ctx context.Context, gw Gateway) (int64, error) {
	last, err := gw.GetLast(ctx, c.positionStreamName(), "Recorded")
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	msg, err := MsgFromData[Recorded](*last)
	if err != nil {
		return 0, err
	}
	return msg.Data.Position, nil
}

// Start runs the Consumer until ctx is canceled or a fatal store error
// occurs, consuming the Consumer's state exactly once.
func (c *Consumer[Settings]) Start(ctx context.Context, gw Gateway, settings Settings) error {
	startPosition, err := c.getPosition(ctx, gw)
	if err != nil {
		return err
	}

	readOpts := ReadOptions{
		BatchSize:   c.opts.BatchSize,
		Correlation: c.opts.Correlation,
	}
	if c.opts.Group != nil {
		size, member := c.opts.Group.Size, c.opts.Group.Member
		readOpts.ConsumerGroupSize = &size
		readOpts.ConsumerGroupMember = &member
	}

	ch := make(chan MessageData, c.opts.BatchSize)
	sub := NewSubscription(gw, c.category, startPosition, readOpts, c.opts.PollInterval, ch)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	subErr := make(chan error, 1)
	go func() {
		subErr <- sub.Run(subCtx)
	}()

	c.log.Info().Int64("start_position", startPosition).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-subErr:
			return err
		case md := <-ch:
			updatePosition, _ := md.Metadata.GlobalPosition()
			if err := c.dispatch(ctx, gw, md, settings); err != nil {
				return err
			}
			if err := c.updatePosition(ctx, gw, updatePosition); err != nil {
				return err
			}
		}
	}
}

// dispatch runs every handler whose type matches,
// OR-ing processed flags, with strict mode panicking the consumer if
// nothing processed the message.
func (c *Consumer[Settings]) dispatch(ctx context.Context, gw Gateway, md MessageData, settings Settings) error {
	processed, err := c.handlers.Dispatch(ctx, md, gw, settings)
	if err != nil {
		return err
	}
	if c.opts.Strict && !processed {
		c.log.Panic().Str("type", md.TypeName).Msg("strict mode: message processed by no handler")
	}
	return nil
}

// updatePosition implements flush-every-N batching of position records:
// the counter advances on every dispatched message, but a Recorded row is
// only built and written once every PositionUpdateInterval messages,
// carrying that call's global_position. Intervening messages are counted
// and otherwise dropped, not accumulated.
func (c *Consumer[Settings]) updatePosition(ctx context.Context, gw Gateway, position int64) error {
	c.positionUpdateCounter++
	if c.positionUpdateCounter < c.opts.PositionUpdateInterval {
		return nil
	}

	md := mustMessageData(Recorded{Position: position})
	if _, err := gw.Write(ctx, c.positionStreamName(), []MessageData{md}, nil); err != nil {
		return err
	}
	c.positionUpdateCounter = 0
	return nil
}

func mustMessageData(r Recorded) MessageData {
	md, err := ToMessageData(Msg[Recorded]{Data: r, Metadata: NewMetadata()})
	if err != nil {
		// Recorded always marshals; a failure here means json itself is
		// broken.
		panic(err)
	}
	return md
}
