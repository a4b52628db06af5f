package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	a := New()
	b := New()

	require.False(t, a.IsZero())
	require.False(t, b.IsZero())
	require.NotEqual(t, a, b)

	// Monotonic source: same-millisecond IDs still sort.
	require.Less(t, a.String(), b.String())
}

func TestParse(t *testing.T) {
	t.Parallel()

	id := New()

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = Parse("")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("not-a-ulid")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestTime(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	id := New()
	after := time.Now().Add(time.Second)

	ts := id.Time()
	require.True(t, ts.After(before))
	require.True(t, ts.Before(after))

	require.True(t, Zero.Time().IsZero())
}
