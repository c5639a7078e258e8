package eventframe

import "context"

// Built-in HandlerParam constructors: the Write gateway
// itself, pure category constants, and an EntityStore for any Entity
// type, each built from (connection, settings) at dispatch time.

// WriteParam is a HandlerParamBuilder that hands the handler the dispatch
// Gateway unchanged, for writing new messages.
func WriteParam[Settings any]() HandlerParamBuilder[Settings, Gateway] {
	return func(_ context.Context, gw Gateway, _ Settings) (Gateway, error) {
		return gw, nil
	}
}

// CategoryParam is a HandlerParamBuilder that hands the handler a fixed
// category constant, independent of connection or settings.
func CategoryParam[Settings any](category StreamName) HandlerParamBuilder[Settings, StreamName] {
	return func(_ context.Context, _ Gateway, _ Settings) (StreamName, error) {
		return category, nil
	}
}

// EntityStoreParam is a HandlerParamBuilder that wraps a per-Entity-type
// EntityStore configuration chosen by the application at build time,
// constructing a new EntityStore from the dispatch-time Gateway on each
// call; the entities it fetches share the process-wide entity cache.
func EntityStoreParam[Entity, Settings any](category StreamName, newEntity func() Entity, configure func(*EntityStore[Entity]) error) HandlerParamBuilder[Settings, *EntityStore[Entity]] {
	return func(_ context.Context, gw Gateway, _ Settings) (*EntityStore[Entity], error) {
		es, err := BuildEntityStore(gw, category, newEntity)
		if err != nil {
			return nil, err
		}
		if configure != nil {
			if err := configure(es); err != nil {
				return nil, err
			}
		}
		return es, nil
	}
}
