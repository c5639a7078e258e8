package eventframe

import (
	"context"
	"sort"
	"sync"
)

// fakeGateway is the Substitute: an in-memory Gateway double that lets
// tests exercise Subscription/Consumer/EntityStore/Handler logic without a
// database.
// It is guarded by a mutex so a test can hold a shared handle while the
// system under test runs concurrently, then call Unwrap to inspect state.
type fakeGateway struct {
	mu sync.Mutex

	streams map[StreamName][]MessageData // keyed by full stream name
	global  []MessageData                // all messages, in append order, for category reads

	// errs lets a test force the next call of a given op to fail.
	errs map[string]error
}

// NewSubstitute returns a SubstituteHandle wrapping a fresh in-memory
// Gateway.
func NewSubstitute() *SubstituteHandle {
	return &SubstituteHandle{
		gw: &fakeGateway{
			streams: make(map[StreamName][]MessageData),
			errs:    make(map[string]error),
		},
	}
}

// SubstituteHandle is a uniquely-owned handle around a shared fakeGateway.
// Tests pass Gateway() to the system under test, exercise it, and then
// call Unwrap to inspect the recorded messages once the handle is no
// longer shared — following the "shared handle, unique at
// unwrap time" test-double idiom.
type SubstituteHandle struct {
	gw *fakeGateway
}

// Gateway returns the Gateway interface to hand to the system under test.
func (h *SubstituteHandle) Gateway() Gateway { return h.gw }

// FailNextWith configures the next call to the named operation
// (GetVersion, GetLast, GetStream, GetCategory, Write) to return err.
func (h *SubstituteHandle) FailNextWith(op string, err error) {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	h.gw.errs[op] = err
}

// Unwrap returns the substitute's recorded state: every message ever
// appended, across all streams, in append order.
func (h *SubstituteHandle) Unwrap() []MessageData {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	out := make([]MessageData, len(h.gw.global))
	copy(out, h.gw.global)
	return out
}

// Stream returns a copy of a single stream's recorded messages.
func (h *SubstituteHandle) Stream(name StreamName) []MessageData {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	out := make([]MessageData, len(h.gw.streams[name]))
	copy(out, h.gw.streams[name])
	return out
}

func (g *fakeGateway) takeErr(op string) error {
	err := g.errs[op]
	delete(g.errs, op)
	return err
}

func (g *fakeGateway) GetVersion(_ context.Context, stream StreamName) (Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr("GetVersion"); err != nil {
		return 0, err
	}
	msgs := g.streams[stream]
	if len(msgs) == 0 {
		return VersionInitial, nil
	}
	pos, _ := msgs[len(msgs)-1].Metadata.Position()
	return Version(pos), nil
}

func (g *fakeGateway) GetLast(_ context.Context, stream StreamName, messageType string) (*MessageData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr("GetLast"); err != nil {
		return nil, err
	}
	msgs := g.streams[stream]
	for i := len(msgs) - 1; i >= 0; i-- {
		if messageType == "" || msgs[i].TypeName == messageType {
			m := msgs[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) GetStream(_ context.Context, stream StreamName, opts ReadOptions) ([]MessageData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr("GetStream"); err != nil {
		return nil, err
	}
	var out []MessageData
	batch := resolveBatchSize(opts)
	for _, m := range g.streams[stream] {
		pos, _ := m.Metadata.Position()
		if pos < opts.Position {
			continue
		}
		if opts.MessageType != "" && m.TypeName != opts.MessageType {
			continue
		}
		out = append(out, m)
		if int64(len(out)) >= batch {
			break
		}
	}
	return out, nil
}

func (g *fakeGateway) GetCategory(_ context.Context, category StreamName, opts ReadOptions) ([]MessageData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr("GetCategory"); err != nil {
		return nil, err
	}

	catStr := string(category)
	var candidates []MessageData
	for _, m := range g.global {
		name, _ := m.Metadata.StreamName()
		if name.Category() != StreamName(catStr) {
			continue
		}
		gpos, _ := m.Metadata.GlobalPosition()
		if gpos <= opts.Position {
			continue
		}
		if opts.MessageType != "" && m.TypeName != opts.MessageType {
			continue
		}
		if opts.Correlation != "" {
			corr, _ := m.Metadata.CorrelationStreamName()
			if corr != opts.Correlation {
				continue
			}
		}
		if opts.ConsumerGroupSize != nil && opts.ConsumerGroupMember != nil {
			name, _ := m.Metadata.StreamName()
			id, _ := name.CardinalID()
			if int64(hashString(id))%*opts.ConsumerGroupSize != *opts.ConsumerGroupMember {
				continue
			}
		}
		candidates = append(candidates, m)
	}

	sort.Slice(candidates, func(i, j int) bool {
		gi, _ := candidates[i].Metadata.GlobalPosition()
		gj, _ := candidates[j].Metadata.GlobalPosition()
		return gi < gj
	})

	batch := resolveBatchSize(opts)
	if int64(len(candidates)) > batch {
		candidates = candidates[:batch]
	}
	return candidates, nil
}

func (g *fakeGateway) Read(ctx context.Context, stream StreamName, opts ReadOptions) ([]MessageData, error) {
	return read(ctx, g, stream, opts)
}

func (g *fakeGateway) Write(_ context.Context, stream StreamName, messages []MessageData, expectedVersion *Version) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr("Write"); err != nil {
		return 0, err
	}

	currentVersion := VersionInitial
	if msgs := g.streams[stream]; len(msgs) > 0 {
		currentVersion, _ = positionOf(msgs[len(msgs)-1])
	}

	expected := expectedVersion
	if expected != nil && *expected != currentVersion {
		return 0, &Error{Kind: KindWrongExpectedVersion, Op: "Write"}
	}

	var lastPosition int64
	for _, msg := range messages {
		if expected != nil && *expected != currentVersion {
			return 0, &Error{Kind: KindWrongExpectedVersion, Op: "Write"}
		}
		nextPos := int64(currentVersion) + 1

		meta := msg.Metadata
		if meta == nil {
			meta = NewMetadata()
		} else {
			cp := make(Metadata, len(meta))
			for k, v := range meta {
				cp[k] = v
			}
			meta = cp
		}
		meta.SetStreamName(stream)
		meta.SetPosition(nextPos)
		globalPos := int64(len(g.global)) + 1
		meta.SetGlobalPosition(globalPos)

		written := MessageData{TypeName: msg.TypeName, Data: msg.Data, Metadata: meta}
		g.streams[stream] = append(g.streams[stream], written)
		g.global = append(g.global, written)

		lastPosition = nextPos
		currentVersion = Version(nextPos)
		if expected != nil {
			next := expected.Next()
			expected = &next
		}
	}
	return lastPosition, nil
}

func positionOf(m MessageData) (Version, bool) {
	p, ok := m.Metadata.Position()
	return Version(p), ok
}

func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
