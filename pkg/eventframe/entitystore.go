package eventframe

import (
	"container/list"
	"context"
	"reflect"
	"sync"
)

const (
	// maxEntityTypes bounds the number of distinct Entity types the
	// process-wide cache tracks.
	maxEntityTypes = 5
	// maxEntriesPerType bounds each Entity type's own LRU.
	maxEntriesPerType = 10000
)

type cacheEntry struct {
	key     StreamName
	entity  any
	version Version
}

// typeCache is an LRU of (StreamName -> (entity, version)) for one Entity
// type: a type-erased registry mapping reflect.Type -> cache so every
// Entity type shares the same process-wide bookkeeping.
type typeCache struct {
	mu    sync.Mutex
	ll    *list.List
	index map[StreamName]*list.Element
}

func newTypeCache() *typeCache {
	return &typeCache{ll: list.New(), index: make(map[StreamName]*list.Element)}
}

func (c *typeCache) get(key StreamName) (any, Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, 0, false
	}
	c.ll.MoveToFront(el)
	entry := el.Value.(*cacheEntry)
	return entry.entity, entry.version, true
}

func (c *typeCache) put(key StreamName, entity any, version Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).entity = entity
		el.Value.(*cacheEntry).version = version
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, entity: entity, version: version})
	c.index[key] = el
	if c.ll.Len() > maxEntriesPerType {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).key)
		}
	}
}

var (
	registryMu sync.Mutex
	registry   = make(map[reflect.Type]*typeCache)
)

// cacheFor lazily creates (once only) the process-wide cache for Entity
// type T, failing if doing so would exceed maxEntityTypes.
func cacheFor[Entity any]() (*typeCache, error) {
	var zero Entity
	t := reflect.TypeOf(zero)

	registryMu.Lock()
	defer registryMu.Unlock()

	if c, ok := registry[t]; ok {
		return c, nil
	}
	if len(registry) >= maxEntityTypes {
		return nil, &Error{Kind: KindOther, Op: "EntityStore",
			Err: errTooManyEntityTypes}
	}
	c := newTypeCache()
	registry[t] = c
	return c, nil
}

var errTooManyEntityTypes = errStr("eventframe: entity cache already tracks the maximum of " +
	"distinct entity types; register fewer Entity types or reuse an existing one")

type errStr string

func (e errStr) Error() string { return string(e) }

// EntityStore returns a typed, cached projection of any stream within a
// fixed category, folding registered projections over the stream's
// messages.
type EntityStore[Entity any] struct {
	category    StreamName
	gateway     Gateway
	cache       *typeCache
	projections map[string]func(entity any, md MessageData) error
	catchall    func(entity any, md MessageData)
	newEntity   func() Entity
}

// BuildEntityStore constructs an EntityStore for Entity within category,
// using newEntity to produce a fresh default Entity. A process-wide typed
// cache for Entity is lazily created on first use.
func BuildEntityStore[Entity any](gateway Gateway, category StreamName, newEntity func() Entity) (*EntityStore[Entity], error) {
	cache, err := cacheFor[Entity]()
	if err != nil {
		return nil, err
	}
	return &EntityStore[Entity]{
		category:    category,
		gateway:     gateway,
		cache:       cache,
		projections: make(map[string]func(entity any, md MessageData) error),
		newEntity:   newEntity,
	}, nil
}

// InsertProjection registers a typed projection for message type M. Fails
// with KindDuplicateProjection if one is already registered for M's
// TypeName.
func InsertProjection[Entity any, M MessageType](es *EntityStore[Entity], fn func(entity *Entity, msg Msg[M])) error {
	var zero M
	typeName := zero.TypeName()
	if _, exists := es.projections[typeName]; exists {
		return duplicateProjectionError("InsertProjection", typeName)
	}
	es.projections[typeName] = func(entity any, md MessageData) error {
		msg, err := MsgFromData[M](md)
		if err != nil {
			return err
		}
		e := entity.(*Entity)
		fn(e, msg)
		return nil
	}
	return nil
}

// ProjectionEntry is one staged (typeName, apply) pair, produced by
// ProjectionFor for use with ExtendProjections.
type ProjectionEntry[Entity any] struct {
	typeName string
	apply    func(entity any, md MessageData) error
}

// ProjectionFor stages a typed projection for ExtendProjections without
// inserting it, so a batch of projections can be validated for duplicates
// before any of them take effect.
func ProjectionFor[Entity any, M MessageType](fn func(entity *Entity, msg Msg[M])) ProjectionEntry[Entity] {
	var zero M
	return ProjectionEntry[Entity]{
		typeName: zero.TypeName(),
		apply: func(entity any, md MessageData) error {
			msg, err := MsgFromData[M](md)
			if err != nil {
				return err
			}
			fn(entity.(*Entity), msg)
			return nil
		},
	}
}

// ExtendProjections atomically inserts multiple staged projections: if any
// entry duplicates an existing or sibling TypeName, none are inserted.
func ExtendProjections[Entity any](es *EntityStore[Entity], entries ...ProjectionEntry[Entity]) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if _, exists := es.projections[e.typeName]; exists {
			return duplicateProjectionError("ExtendProjections", e.typeName)
		}
		if seen[e.typeName] {
			return duplicateProjectionError("ExtendProjections", e.typeName)
		}
		seen[e.typeName] = true
	}
	for _, e := range entries {
		es.projections[e.typeName] = e.apply
	}
	return nil
}

// Catchall registers a fallback applied to every message after typed
// projections, optional and at most one per EntityStore.
func (es *EntityStore[Entity]) Catchall(fn func(entity *Entity, md MessageData)) {
	es.catchall = func(entity any, md MessageData) {
		fn(entity.(*Entity), md)
	}
}

// Fetch resolves the cached
// (entity, version), short-circuit if the store's current version matches,
// otherwise replay messages from version+1 through every registered
// projection (typed, then catchall).
func (es *EntityStore[Entity]) Fetch(ctx context.Context, streamID string) (Entity, Version, error) {
	streamName := NewStreamName(es.category, streamID)

	cachedAny, cachedVersion, ok := es.cache.get(streamName)
	var entity Entity
	if ok {
		entity = cachedAny.(Entity)
	} else {
		entity = es.newEntity()
		cachedVersion = VersionInitial
	}

	currentVersion, err := es.gateway.GetVersion(ctx, streamName)
	if err != nil {
		return entity, 0, err
	}
	if currentVersion == cachedVersion {
		es.cache.put(streamName, entity, cachedVersion)
		return entity, cachedVersion, nil
	}

	version := cachedVersion
	opts := ReadOptions{Position: int64(cachedVersion) + 1, BatchSize: DefaultBatchSize}
	for {
		messages, err := es.gateway.Read(ctx, streamName, opts)
		if err != nil {
			return entity, 0, err
		}
		if len(messages) == 0 {
			break
		}
		for _, md := range messages {
			pos, _ := md.Metadata.Position()
			version = Version(pos)

			if proj, ok := es.projections[md.TypeName]; ok {
				if err := proj(&entity, md); err != nil {
					return entity, 0, err
				}
			}
			if es.catchall != nil {
				es.catchall(&entity, md)
			}
		}
		if int64(len(messages)) < resolveBatchSize(opts) {
			break
		}
		opts.Position = int64(version) + 1
	}

	es.cache.put(streamName, entity, version)
	return entity, version, nil
}
