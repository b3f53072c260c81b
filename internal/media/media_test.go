package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		contentType string
		kind        Kind
		ok          bool
	}{
		{"image/png", KindImage, true},
		{"image/jpeg", KindImage, true},
		{"video/mp4", KindVideo, true},
		{"audio/ogg", KindAudio, true},
		{"application/pdf", "", false},
		{"text/plain", "", false},
		{"", "", false},
	}

	for _, c := range cases {
		kind, ok := KindOf(c.contentType)
		require.Equal(t, c.ok, ok, c.contentType)
		require.Equal(t, c.kind, kind, c.contentType)
	}
}

func TestSniffKind(t *testing.T) {
	// Minimal PNG header is enough for detection.
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	kind, ok := SniffKind(png)
	require.True(t, ok)
	require.Equal(t, KindImage, kind)

	_, ok = SniffKind([]byte("plain text, nothing to see"))
	require.False(t, ok)
}
