package eventframe

// Version is the last assigned position of a stream. VersionInitial (-1)
// denotes a stream with no messages yet; all other values are the last
// stream position, monotonically increasing per stream.
type Version int64

// VersionInitial is the version of a stream before its first append.
const VersionInitial Version = -1

// Next returns the version expected after appending one more message.
func (v Version) Next() Version { return v + 1 }
