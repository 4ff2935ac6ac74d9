package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := Encode(Cursor{LastID: 981})
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(981), c.LastID)

	c, err = Decode("")
	require.NoError(t, err)
	assert.Zero(t, c.LastID)

	_, err = Decode("%%%")
	assert.Error(t, err)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0))
	assert.Equal(t, 10, PageSize(10))
	assert.Equal(t, MaxPageSize, PageSize(10_000))
}
