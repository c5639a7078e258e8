package eventframe

import "context"

// Handler is the adapted contract every user-supplied handler function is
// reduced to: given a message, the store gateway, and the Consumer's
// Settings, decide whether to process it and, if so, process it before
// returning, reporting whether it did.
type Handler[Settings any] func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error)

// HandlerParamBuilder constructs one HandlerParam value from the gateway
// and settings available at dispatch time, giving handlers a lightweight
// form of per-call dependency injection.
type HandlerParamBuilder[Settings, P any] func(ctx context.Context, gw Gateway, settings Settings) (P, error)

// registeredHandler pairs a Handler with the message TYPE_NAME key used to
// detect duplicates when building a HandlerCollection. typeName is empty
// for the catchall handler.
type registeredHandler[Settings any] struct {
	typeName string
	isCatch  bool
	handler  Handler[Settings]
}

// HandlerFunc0 adapts a handler with no HandlerParams beyond the typed
// message.
func HandlerFunc0[T MessageType, Settings any](fn func(context.Context, Msg[T]) error) registeredHandler[Settings] {
	var zero T
	return registeredHandler[Settings]{
		typeName: zero.TypeName(),
		handler: func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
			if md.TypeName != zero.TypeName() {
				return false, nil
			}
			msg, err := MsgFromData[T](md)
			if err != nil {
				return false, err
			}
			return true, fn(ctx, msg)
		},
	}
}

// HandlerFunc1 adapts a handler taking the typed message plus one
// HandlerParam built from (gateway, settings).
func HandlerFunc1[T MessageType, Settings, P1 any](
	fn func(context.Context, Msg[T], P1) error,
	b1 HandlerParamBuilder[Settings, P1],
) registeredHandler[Settings] {
	var zero T
	return registeredHandler[Settings]{
		typeName: zero.TypeName(),
		handler: func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
			if md.TypeName != zero.TypeName() {
				return false, nil
			}
			msg, err := MsgFromData[T](md)
			if err != nil {
				return false, err
			}
			p1, err := b1(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			return true, fn(ctx, msg, p1)
		},
	}
}

// HandlerFunc2 adapts a handler taking the typed message plus two
// HandlerParams.
func HandlerFunc2[T MessageType, Settings, P1, P2 any](
	fn func(context.Context, Msg[T], P1, P2) error,
	b1 HandlerParamBuilder[Settings, P1],
	b2 HandlerParamBuilder[Settings, P2],
) registeredHandler[Settings] {
	var zero T
	return registeredHandler[Settings]{
		typeName: zero.TypeName(),
		handler: func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
			if md.TypeName != zero.TypeName() {
				return false, nil
			}
			msg, err := MsgFromData[T](md)
			if err != nil {
				return false, err
			}
			p1, err := b1(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			p2, err := b2(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			return true, fn(ctx, msg, p1, p2)
		},
	}
}

// HandlerFunc3 adapts a handler taking the typed message plus three
// HandlerParams.
func HandlerFunc3[T MessageType, Settings, P1, P2, P3 any](
	fn func(context.Context, Msg[T], P1, P2, P3) error,
	b1 HandlerParamBuilder[Settings, P1],
	b2 HandlerParamBuilder[Settings, P2],
	b3 HandlerParamBuilder[Settings, P3],
) registeredHandler[Settings] {
	var zero T
	return registeredHandler[Settings]{
		typeName: zero.TypeName(),
		handler: func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
			if md.TypeName != zero.TypeName() {
				return false, nil
			}
			msg, err := MsgFromData[T](md)
			if err != nil {
				return false, err
			}
			p1, err := b1(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			p2, err := b2(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			p3, err := b3(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			return true, fn(ctx, msg, p1, p2, p3)
		},
	}
}

// HandlerFunc4 adapts a handler taking the typed message plus four
// HandlerParams. It is the widest adapter provided; the account example's
// handlers use at most two HandlerParams.
func HandlerFunc4[T MessageType, Settings, P1, P2, P3, P4 any](
	fn func(context.Context, Msg[T], P1, P2, P3, P4) error,
	b1 HandlerParamBuilder[Settings, P1],
	b2 HandlerParamBuilder[Settings, P2],
	b3 HandlerParamBuilder[Settings, P3],
	b4 HandlerParamBuilder[Settings, P4],
) registeredHandler[Settings] {
	var zero T
	return registeredHandler[Settings]{
		typeName: zero.TypeName(),
		handler: func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
			if md.TypeName != zero.TypeName() {
				return false, nil
			}
			msg, err := MsgFromData[T](md)
			if err != nil {
				return false, err
			}
			p1, err := b1(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			p2, err := b2(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			p3, err := b3(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			p4, err := b4(ctx, gw, settings)
			if err != nil {
				return false, err
			}
			return true, fn(ctx, msg, p1, p2, p3, p4)
		},
	}
}

// CatchallHandlerFunc adapts a handler whose first parameter is the
// untyped MessageData: it always invokes and always reports processed.
func CatchallHandlerFunc[Settings any](fn func(context.Context, MessageData, Gateway, Settings) error) registeredHandler[Settings] {
	return registeredHandler[Settings]{
		isCatch: true,
		handler: func(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
			return true, fn(ctx, md, gw, settings)
		},
	}
}

// HandlerCollection is a TYPE_NAME -> Handler mapping plus an optional
// catchall, built from a tuple of handler functions with at most one
// handler per message type.
type HandlerCollection[Settings any] struct {
	byType   map[string]Handler[Settings]
	catchall Handler[Settings]
}

// NewHandlerCollection builds a HandlerCollection from registeredHandler
// values (produced by HandlerFunc0..HandlerFunc4 or CatchallHandlerFunc),
// failing at build time if any two entries key the same TYPE_NAME or more
// than one is a catchall.
func NewHandlerCollection[Settings any](entries ...registeredHandler[Settings]) (*HandlerCollection[Settings], error) {
	hc := &HandlerCollection[Settings]{byType: make(map[string]Handler[Settings], len(entries))}
	for _, e := range entries {
		if e.isCatch {
			if hc.catchall != nil {
				return nil, duplicateHandlerError("NewHandlerCollection", "<catchall>")
			}
			hc.catchall = e.handler
			continue
		}
		if _, exists := hc.byType[e.typeName]; exists {
			return nil, duplicateHandlerError("NewHandlerCollection", e.typeName)
		}
		hc.byType[e.typeName] = e.handler
	}
	return hc, nil
}

// Dispatch invokes every handler whose type matches md, then the catchall
// if present, and reports whether any handler processed the message —
// used by Consumer.dispatch for strict-mode enforcement.
func (hc *HandlerCollection[Settings]) Dispatch(ctx context.Context, md MessageData, gw Gateway, settings Settings) (bool, error) {
	processed := false
	if h, ok := hc.byType[md.TypeName]; ok {
		p, err := h(ctx, md, gw, settings)
		if err != nil {
			return false, err
		}
		processed = processed || p
	}
	if hc.catchall != nil {
		p, err := hc.catchall(ctx, md, gw, settings)
		if err != nil {
			return false, err
		}
		processed = processed || p
	}
	return processed, nil
}
