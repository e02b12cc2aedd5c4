// Package codec centralizes record encoding for the document and chunk
// stores.
//
// Codec selection is a compatibility boundary: records written by one codec
// must stay decodable, so persisted files are always plain JSON bytes and
// the codec choice only changes which encoder produces them.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}

// Default is the codec used when a store is created without an explicit
// codec option. Both built-in codecs produce interoperable JSON, so the
// default may change without a migration.
var Default Codec = GoJSON{}
