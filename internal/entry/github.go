package entry

import "fmt"

// GithubValue is the value half of a GithubEntry: a release asset
// fetched from a GitHub releases download URL, identity-pinned by the
// full (owner, repo, tag, asset) tuple.
type GithubValue struct {
	Owner   string
	Repo    string
	Tag     string
	Asset   string
	payload []byte
}

// URL formats the canonical GitHub release-asset download URL:
// https://github.com/{owner}/{repo}/releases/download/{tag}/{asset}.
func (v *GithubValue) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s/releases/download/%s/%s", v.Owner, v.Repo, v.Tag, v.Asset)
}

func (v *GithubValue) SameIdentity(other Value) bool {
	o, ok := other.(*GithubValue)
	if !ok {
		return false
	}
	return v.Owner == o.Owner && v.Repo == o.Repo && v.Tag == o.Tag && v.Asset == o.Asset
}

func (v *GithubValue) Payload() []byte { return v.payload }

func (v *GithubValue) SetPayload(b []byte) { v.payload = b }

func (v *GithubValue) ToBytes() []byte {
	w := newCodecWriter()
	w.writeString(v.Owner)
	w.writeString(v.Repo)
	w.writeString(v.Tag)
	w.writeString(v.Asset)
	w.writeBytes(v.payload)
	return w.Bytes()
}

// FromBytes decodes b into a new *GithubValue, satisfying entry.Value.
func (v *GithubValue) FromBytes(b []byte) (Value, error) {
	return GithubValueFromBytes(b)
}

// GithubValueFromBytes decodes a GithubValue encoded by ToBytes.
func GithubValueFromBytes(b []byte) (*GithubValue, error) {
	r := newCodecReader(b)
	owner, err := r.readString()
	if err != nil {
		return nil, err
	}
	repo, err := r.readString()
	if err != nil {
		return nil, err
	}
	tag, err := r.readString()
	if err != nil {
		return nil, err
	}
	asset, err := r.readString()
	if err != nil {
		return nil, err
	}
	payload, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	return &GithubValue{
		Owner: owner, Repo: repo, Tag: tag, Asset: asset,
		payload: append([]byte(nil), payload...),
	}, nil
}

// GithubEntry is a GitHub release asset; key = formatted string of
// (asset, owner, repo, tag), identity-equal iff the full 4-tuple matches.
type GithubEntry struct {
	owner, repo, tag, asset string
	value                   *GithubValue
}

// NewGithubEntry constructs a GithubEntry with an empty payload slot.
func NewGithubEntry(owner, repo, tag, asset string) *GithubEntry {
	return &GithubEntry{
		owner: owner, repo: repo, tag: tag, asset: asset,
		value: &GithubValue{Owner: owner, Repo: repo, Tag: tag, Asset: asset},
	}
}

func (e *GithubEntry) Key() Key {
	return StringKey(fmt.Sprintf("%s/%s/%s[%s]", e.owner, e.repo, e.asset, e.tag))
}

func (e *GithubEntry) Value() Value { return e.value }
