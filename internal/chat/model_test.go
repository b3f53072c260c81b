package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, "3-11", DirectKey(11, 3))
	require.Equal(t, "3-11", DirectKey(3, 11))
	require.Equal(t, "5-5", DirectKey(5, 5))
}
