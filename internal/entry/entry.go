// Package entry defines the cacheable-artifact abstraction the coordinator
// dispatches over: a Key identifying an artifact and a Value carrying the
// fetch pointer, identity-refinement metadata, and the payload slot.
package entry

// Key identifies a cacheable artifact. Bytes must be stable across runs;
// Display is used for log lines and progress-bar labels.
type Key interface {
	Bytes() []byte
	Display() string
}

// Value is the mutable record bound to a Key: the fetch URL, any
// identity-refinement fields, and the payload slot.
type Value interface {
	// URL is the location to GET when the payload needs (re)fetching.
	URL() string

	// SameIdentity reports whether other carries the same identity-relevant
	// fields as this value. The payload is excluded from the comparison.
	SameIdentity(other Value) bool

	// Payload returns the currently-set response bytes, or nil if unset.
	Payload() []byte

	// SetPayload installs the response bytes fetched for this value.
	SetPayload(b []byte)

	// ToBytes encodes the whole record, including the payload, for storage.
	ToBytes() []byte

	// FromBytes decodes b into a new Value of the same concrete type as
	// the receiver; the receiver's own fields are not consulted. This is
	// the dispatch mechanism the coordinator uses to decode a cache
	// record's prior bytes into the same shape as the entry it is
	// re-evaluating, without a type switch in the coordinator itself.
	FromBytes(b []byte) (Value, error)
}

// Entry binds a Key to a Value; the coordinator's unit of work.
type Entry interface {
	Key() Key
	Value() Value
}

// StringKey is the trivial Key implementation: a UTF-8 string is its
// own stable byte identity.
type StringKey string

func (k StringKey) Bytes() []byte   { return []byte(k) }
func (k StringKey) Display() string { return string(k) }
