package entry

// SimpleValue is the value half of a SimpleEntry: a named package
// fetched from a direct URL, identity-pinned by version.
type SimpleValue struct {
	Version string
	Url     string
	payload []byte
}

func (v *SimpleValue) URL() string { return v.Url }

func (v *SimpleValue) SameIdentity(other Value) bool {
	o, ok := other.(*SimpleValue)
	if !ok {
		return false
	}
	return v.Version == o.Version
}

func (v *SimpleValue) Payload() []byte { return v.payload }

func (v *SimpleValue) SetPayload(b []byte) { v.payload = b }

func (v *SimpleValue) ToBytes() []byte {
	w := newCodecWriter()
	w.writeString(v.Version)
	w.writeString(v.Url)
	w.writeBytes(v.payload)
	return w.Bytes()
}

// FromBytes decodes b into a new *SimpleValue, satisfying entry.Value.
func (v *SimpleValue) FromBytes(b []byte) (Value, error) {
	return SimpleValueFromBytes(b)
}

// SimpleValueFromBytes decodes a SimpleValue encoded by ToBytes.
func SimpleValueFromBytes(b []byte) (*SimpleValue, error) {
	r := newCodecReader(b)
	version, err := r.readString()
	if err != nil {
		return nil, err
	}
	url, err := r.readString()
	if err != nil {
		return nil, err
	}
	payload, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	return &SimpleValue{Version: version, Url: url, payload: append([]byte(nil), payload...)}, nil
}

// SimpleEntry is a named artifact fetched from a fixed URL; key = name,
// identity-equal iff Version matches.
type SimpleEntry struct {
	Name  string
	value *SimpleValue
}

// NewSimpleEntry constructs a SimpleEntry with an empty payload slot.
func NewSimpleEntry(name, version, url string) *SimpleEntry {
	return &SimpleEntry{
		Name:  name,
		value: &SimpleValue{Version: version, Url: url},
	}
}

func (e *SimpleEntry) Key() Key     { return StringKey(e.Name) }
func (e *SimpleEntry) Value() Value { return e.value }
