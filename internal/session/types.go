package session

import (
	"time"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/auth"
)

// Incoming is one normalized user message handed over by the transport.
type Incoming struct {
	User  auth.User
	Text  string
	Image *IncomingImage
}

// IncomingImage carries the raw bytes of a submitted photo together
// with the filename declared by the transport.
type IncomingImage struct {
	Data     []byte
	FileName string
}

type Kind int

const (
	// KindReply carries the assistant's reply text.
	KindReply Kind = iota
	// KindPromptSecret: the user is not authorized; prompt for the secret
	// word and stop.
	KindPromptSecret
	// KindGranted: this message was the secret word; the user is now
	// authorized. Nothing else from the message is processed.
	KindGranted
	// KindRateLimited: image admission denied; RetryAfter is set.
	KindRateLimited
	// KindBadImage: the image was rejected (extension or decode). The
	// admission slot consumed before validation is not refunded.
	KindBadImage
)

type Result struct {
	Kind       Kind
	Reply      string
	RetryAfter time.Duration
}
