package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID      uint64            `json:"id"`
	Content string            `json:"content"`
	Tags    map[string]string `json:"tags,omitempty"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsInteroperate(t *testing.T) {
	in := record{
		ID:      7,
		Content: "the cat sat on the mat",
		Tags:    map[string]string{"source": "note"},
	}

	b, err := (JSON{}).Marshal(in)
	require.NoError(t, err)

	var out record
	require.NoError(t, (GoJSON{}).Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestMustMarshalNilCodec(t *testing.T) {
	b := MustMarshal(nil, record{ID: 1})
	assert.NotEmpty(t, b)
}
