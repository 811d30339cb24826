package deck

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is wrapped when a slide names a type nobody registered.
	ErrUnknownType = errors.New("unknown slide type")
	// ErrUnknownKey is wrapped when a deck carries a key nothing reads.
	ErrUnknownKey = errors.New("unknown key")
	// ErrEmptyDeck is wrapped when a deck lists no slides.
	ErrEmptyDeck = errors.New("deck has no slides")
)

// ConfigError reports a deck entry that cannot be played. Index is -1 for
// problems with the deck as a whole.
type ConfigError struct {
	Index int
	Type  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("deck: %s: %v", e.Field, e.Err)
	case e.Type == "":
		return fmt.Sprintf("deck: slide %d: %s: %v", e.Index, e.Field, e.Err)
	default:
		return fmt.Sprintf("deck: slide %d (%s): %s: %v", e.Index, e.Type, e.Field, e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
