package eventframe

import (
	"context"
	"time"
)

// Subscription is the polling loop: it ticks at a
// fixed interval, reads the category from the last seen global_position,
// and pushes messages one at a time onto a bounded channel, providing
// natural backpressure against the Consumer.
type Subscription struct {
	gw           Gateway
	category     StreamName
	opts         ReadOptions
	pollInterval time.Duration
	out          chan<- MessageData

	lastSeen    int64
	haveLastSeen bool
}

// NewSubscription builds a Subscription reading category starting at
// fromGlobalPosition, configured with the given ReadOptions (correlation,
// batch size, consumer-group sharding all pre-populated by the Consumer),
// sending decoded messages to out.
func NewSubscription(gw Gateway, category StreamName, fromGlobalPosition int64, opts ReadOptions, pollInterval time.Duration, out chan<- MessageData) *Subscription {
	opts.Position = fromGlobalPosition
	return &Subscription{
		gw:           gw,
		category:     category,
		opts:         opts,
		pollInterval: pollInterval,
		out:          out,
		lastSeen:     fromGlobalPosition,
		haveLastSeen: fromGlobalPosition > 0,
	}
}

// Run executes the polling loop until ctx is canceled or a store error
// occurs. A blocked send against a full (capacity batch_size) channel
// delays the next tick's read; Go's time.Ticker already drops intervening
// ticks while the receiver is busy, giving skip-missed-tick semantics
// without any custom coalescing logic.
func (s *Subscription) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Subscription) poll(ctx context.Context) error {
	readOpts := s.opts
	if s.haveLastSeen {
		readOpts.Position = s.lastSeen
	}

	messages, err := s.gw.GetCategory(ctx, s.category, readOpts)
	if err != nil {
		return err
	}

	for _, md := range messages {
		gpos, _ := md.Metadata.GlobalPosition()
		if s.haveLastSeen && s.lastSeen >= gpos {
			// Defensive dedup: the store's get_category_messages already
			// returns only global_position > from, but overlapping polls
			// (e.g. after a retry) could otherwise resend a message.
			continue
		}
		select {
		case s.out <- md:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.lastSeen = gpos
		s.haveLastSeen = true
	}
	return nil
}
