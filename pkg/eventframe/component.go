package eventframe

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentConsumer is the subset of Consumer[Settings]'s surface a
// Component needs to run it, letting a Component host Consumers over
// different Settings-parameterized HandlerCollections side by side.
type ComponentConsumer interface {
	Start(ctx context.Context, gw Gateway) error
}

// boundConsumer closes a Consumer[Settings] over its Settings value so it
// satisfies ComponentConsumer.
type boundConsumer[Settings any] struct {
	consumer *Consumer[Settings]
	settings Settings
}

func (b boundConsumer[Settings]) Start(ctx context.Context, gw Gateway) error {
	return b.consumer.Start(ctx, gw, b.settings)
}

// Bind pairs a Consumer with the Settings value it dispatches handlers
// with, producing the ComponentConsumer a Component runs.
func Bind[Settings any](consumer *Consumer[Settings], settings Settings) ComponentConsumer {
	return boundConsumer[Settings]{consumer: consumer, settings: settings}
}

// Component owns a fixed set of Consumers sharing one Gateway and runs
// each on its own goroutine. When the first Consumer to terminate does so
// with an error, Component.Start logs it through zerolog's Fatal, which
// exits the process, mirroring a single supervisory process that exits on
// its first failed child rather than limping on with partial coverage.
type Component struct {
	gw        Gateway
	consumers []ComponentConsumer
	log       zerolog.Logger
}

// NewComponent builds a Component running consumers against gw.
func NewComponent(gw Gateway, consumers ...ComponentConsumer) *Component {
	return &Component{
		gw:        gw,
		consumers: consumers,
		log:       log.With().Str("component", "eventframe.component").Logger(),
	}
}

// Start spawns one goroutine per Consumer and blocks until any Consumer's
// Start returns, then cancels the rest and waits for them. Consumer panics
// (e.g. from strict-mode dispatch failures) are recovered into errors and
// reported through the same channel as ordinary errors. If the first
// result is an error (including the context error a Consumer returns once
// ctx is canceled), Start logs it with Fatal and the process exits; Start
// only returns when that first result is nil, or, with no Consumers, when
// ctx is done.
func (c *Component) Start(ctx context.Context) error {
	if len(c.consumers) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(c.consumers))
	var wg sync.WaitGroup
	wg.Add(len(c.consumers))

	for i, cons := range c.consumers {
		i, cons := i, cons
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errCh <- &Error{Kind: KindOther, Op: "Component.Start", Err: panicAsError(r)}
				}
			}()
			if err := cons.Start(runCtx, c.gw); err != nil {
				c.log.Error().Err(err).Int("consumer_index", i).Msg("consumer terminated")
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	first := <-errCh
	cancel()
	for range c.consumers[1:] {
		<-errCh
	}

	if first != nil {
		c.log.Fatal().Err(first).Msg("component exiting: a consumer failed")
	}
	return first
}

func panicAsError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errStr("eventframe: consumer panic: " + toString(r))
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
