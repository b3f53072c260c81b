package media

import (
	"context"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the coarse media class stored alongside a message.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Storage accepts a binary payload and returns a publicly fetchable URL.
// The chat core only keeps the URL and a Kind.
type Storage interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
}

// KindOf maps a content type to a coarse Kind by prefix.
// Anything that is not image/video/audio yields ok=false.
func KindOf(contentType string) (Kind, bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage, true
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo, true
	case strings.HasPrefix(contentType, "audio/"):
		return KindAudio, true
	}
	return "", false
}

// SniffKind detects the Kind from payload bytes when the client did not
// declare a content type.
func SniffKind(data []byte) (Kind, bool) {
	return KindOf(mimetype.Detect(data).String())
}
