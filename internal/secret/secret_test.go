package secret

import (
	"fmt"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

func TestRevealRoundTrips(t *testing.T) {
	payload := []byte("super-secret-preimage")
	s := New(payload)

	require.Equal(t, payload, s.Reveal())
	require.Equal(t, len(payload), s.Len())
	require.False(t, s.IsZero())
}

func TestZeroWipesPayload(t *testing.T) {
	s := New([]byte{1, 2, 3, 4})
	s.Zero()

	require.True(t, s.IsZero())
	for _, b := range s.Reveal() {
		require.Equal(t, byte(0), b)
	}
}

func TestNeverLeaksIntoFormatting(t *testing.T) {
	s := New([]byte("coordinator-private-key-material"))

	for _, rendered := range []string{
		fmt.Sprintf("%v", s),
		fmt.Sprintf("%+v", s),
		fmt.Sprintf("%#v", s),
		spew.Sdump(s),
	} {
		require.False(t, strings.Contains(rendered, "coordinator-private-key-material"))
	}
}

func TestZeroValueIsSafe(t *testing.T) {
	var s Bytes
	require.True(t, s.IsZero())
	s.Zero()
	require.Equal(t, "secret.Bytes(empty)", s.String())
}
