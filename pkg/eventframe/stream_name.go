package eventframe

import "strings"

// StreamName is a parsed message-store stream identifier of the shape
//
//	entityId[:typeA[+typeB...]][-id1[+id2...]]
//
// A StreamName with no "-" segment names a category (used for category
// reads); one with an id segment names a single stream.
type StreamName string

// NewCategory builds a category StreamName from an entity id and optional
// compound category types.
func NewCategory(entityID string, types ...string) StreamName {
	if len(types) == 0 {
		return StreamName(entityID)
	}
	return StreamName(entityID + ":" + strings.Join(types, "+"))
}

// NewStreamName builds a full StreamName from a category and a compound id.
func NewStreamName(category StreamName, ids ...string) StreamName {
	if len(ids) == 0 {
		return category
	}
	return StreamName(string(category) + "-" + strings.Join(ids, "+"))
}

// Split divides the StreamName into its category and, if present, stream id.
func (s StreamName) Split() (category StreamName, id string, hasID bool) {
	str := string(s)
	if idx := strings.IndexByte(str, '-'); idx >= 0 {
		return StreamName(str[:idx]), str[idx+1:], true
	}
	return s, "", false
}

// Category returns the category portion, discarding any id segment.
func (s StreamName) Category() StreamName {
	cat, _, _ := s.Split()
	return cat
}

// StreamID returns the id segment and whether one is present.
func (s StreamName) StreamID() (string, bool) {
	_, id, hasID := s.Split()
	return id, hasID
}

// IsCategory reports whether this StreamName has no id segment.
func (s StreamName) IsCategory() bool {
	_, hasID := s.StreamID()
	return !hasID
}

// AddID appends a compound id to the stream's id segment, creating one if
// absent.
func (s StreamName) AddID(id string) StreamName {
	cat, existing, hasID := s.Split()
	if !hasID || existing == "" {
		return NewStreamName(cat, id)
	}
	return StreamName(string(cat) + "-" + existing + "+" + id)
}

// CardinalID returns the first id of a (possibly compound) id segment.
func (s StreamName) CardinalID() (string, bool) {
	id, hasID := s.StreamID()
	if !hasID {
		return "", false
	}
	if idx := strings.IndexByte(id, '+'); idx >= 0 {
		return id[:idx], true
	}
	return id, true
}

// HasID reports whether the given id is one of the (possibly compound)
// ids in the stream's id segment.
func (s StreamName) HasID(id string) bool {
	current, hasID := s.StreamID()
	if !hasID {
		return false
	}
	for _, part := range strings.Split(current, "+") {
		if part == id {
			return true
		}
	}
	return false
}

// EntityID splits the category into (entityID, optional single category
// type). Compound category types collapse to the first type, mirroring
// CardinalID's treatment of compound ids.
func (s StreamName) EntityID() (entityID string, categoryType string, hasType bool) {
	cat := string(s.Category())
	if idx := strings.IndexByte(cat, ':'); idx >= 0 {
		types := cat[idx+1:]
		if tIdx := strings.IndexByte(types, '+'); tIdx >= 0 {
			types = types[:tIdx]
		}
		return cat[:idx], types, true
	}
	return cat, "", false
}

// AddType appends a compound category type to the category segment of the
// StreamName, preserving any id segment.
func (s StreamName) AddType(categoryType string) StreamName {
	cat, id, hasID := s.Split()
	catStr := string(cat)
	if idx := strings.IndexByte(catStr, ':'); idx >= 0 {
		catStr = catStr + "+" + categoryType
	} else {
		catStr = catStr + ":" + categoryType
	}
	if hasID {
		return StreamName(catStr + "-" + id)
	}
	return StreamName(catStr)
}

// PositionStreamName derives the dedicated position-tracking stream name
// for a category, optionally disambiguated by a consumer identifier.
func PositionStreamName(category StreamName, identifier string) StreamName {
	name := string(category) + ":position"
	if identifier != "" {
		name += "+" + identifier
	}
	return StreamName(name)
}

// String implements fmt.Stringer.
func (s StreamName) String() string {
	return string(s)
}
