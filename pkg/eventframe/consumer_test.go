package eventframe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingMsg struct{ N int64 }

func (pingMsg) TypeName() string { return "Ping" }

func writePing(t *testing.T, gw Gateway, category StreamName, id string, n int64) {
	t.Helper()
	md, err := ToMessageData(Msg[pingMsg]{Data: pingMsg{N: n}, Metadata: NewMetadata()})
	require.NoError(t, err)
	_, err = gw.Write(context.Background(), NewStreamName(category, id), []MessageData{md}, nil)
	require.NoError(t, err)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func TestConsumerDispatchesInGlobalPositionOrderAndRecordsPosition(t *testing.T) {
	handle := NewSubstitute()
	gw := handle.Gateway()
	category := NewCategory("ping")

	for i := int64(0); i < 5; i++ {
		writePing(t, gw, category, "A", i)
	}

	var mu sync.Mutex
	var seen []int64
	handlers, err := NewHandlerCollection(
		HandlerFunc0[pingMsg, struct{}](func(_ context.Context, msg Msg[pingMsg]) error {
			mu.Lock()
			seen = append(seen, msg.Data.N)
			mu.Unlock()
			return nil
		}),
	)
	require.NoError(t, err)

	consumer := NewConsumer(category, handlers, ConsumerOptions{
		PollInterval:           2 * time.Millisecond,
		PositionUpdateInterval: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Start(ctx, gw, struct{}{})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	})

	mu.Lock()
	got := append([]int64(nil), seen...)
	mu.Unlock()
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, got)

	// PositionUpdateInterval=2 writes a single Recorded row after the 2nd
	// and 4th dispatched message; the 5th message only advances the
	// counter and writes nothing, so two rows land in the position stream,
	// the last carrying global position 4.
	waitFor(t, time.Second, func() bool {
		return len(handle.Stream(PositionStreamName(category, ""))) == 2
	})
	recorded := handle.Stream(PositionStreamName(category, ""))
	last, err := MsgFromData[Recorded](recorded[len(recorded)-1])
	require.NoError(t, err)
	assert.Equal(t, int64(4), last.Data.Position)
}

func TestConsumerResumesFromPersistedPosition(t *testing.T) {
	handle := NewSubstitute()
	gw := handle.Gateway()
	category := NewCategory("ping-resume")

	for i := int64(0); i < 3; i++ {
		writePing(t, gw, category, "A", i)
	}

	positionMD, err := ToMessageData(Msg[Recorded]{Data: Recorded{Position: 2}, Metadata: NewMetadata()})
	require.NoError(t, err)
	_, err = gw.Write(context.Background(), PositionStreamName(category, ""), []MessageData{positionMD}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int64
	handlers, err := NewHandlerCollection(
		HandlerFunc0[pingMsg, struct{}](func(_ context.Context, msg Msg[pingMsg]) error {
			mu.Lock()
			seen = append(seen, msg.Data.N)
			mu.Unlock()
			return nil
		}),
	)
	require.NoError(t, err)

	consumer := NewConsumer(category, handlers, ConsumerOptions{PollInterval: 2 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Start(ctx, gw, struct{}{})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{2}, seen, "resumed consumer must only receive messages after the persisted position")
}

func TestConsumerStrictModePanicsOnUnprocessedMessage(t *testing.T) {
	handle := NewSubstitute()
	gw := handle.Gateway()
	category := NewCategory("ping-strict")
	writePing(t, gw, category, "A", 0)

	handlers, err := NewHandlerCollection[struct{}]()
	require.NoError(t, err)

	consumer := NewConsumer(category, handlers, ConsumerOptions{
		PollInterval: 2 * time.Millisecond,
		Strict:       true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var panicked bool
	go func() {
		defer close(done)
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		_ = consumer.Start(ctx, gw, struct{}{})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not terminate in time")
	}
	assert.True(t, panicked, "strict mode must panic when no handler processes a message")
}
