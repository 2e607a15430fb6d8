package websocket

import (
	"errors"
	"fmt"
	"strings"
)

// RoomSeparator joins the two identities of a direct room token. Group ids
// and identities never contain it.
const RoomSeparator = "_"

const (
	// MaxRoomLength matches the width of the room columns.
	MaxRoomLength = 191

	// MaxIdentityLength keeps any direct token within MaxRoomLength.
	MaxIdentityLength = (MaxRoomLength - len(RoomSeparator)) / 2
)

var (
	ErrInvalidRoom     = errors.New("invalid room token")
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Room is either a DirectRoom or a GroupRoom.
type Room interface {
	Token() string
	isRoom()
}

// DirectRoom is a conversation between exactly two identities, A < B.
type DirectRoom struct {
	A string
	B string
}

func (r DirectRoom) Token() string { return r.A + RoomSeparator + r.B }

// Participants returns both identities.
func (r DirectRoom) Participants() []string { return []string{r.A, r.B} }

// Has reports whether identity is one of the two participants.
func (r DirectRoom) Has(identity string) bool { return identity == r.A || identity == r.B }

func (DirectRoom) isRoom() {}

// GroupRoom is resolved through the membership store.
type GroupRoom struct {
	ID string
}

func (r GroupRoom) Token() string { return r.ID }

func (GroupRoom) isRoom() {}

// ValidateIdentity checks that identity can be embedded in a direct room
// token.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if strings.Contains(identity, RoomSeparator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidIdentity, identity, RoomSeparator)
	}
	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, MaxIdentityLength)
	}
	return nil
}

// NewDirectRoom orders the two identities so that NewDirectRoom(a, b) and
// NewDirectRoom(b, a) are equal.
func NewDirectRoom(a, b string) (DirectRoom, error) {
	if err := ValidateIdentity(a); err != nil {
		return DirectRoom{}, err
	}
	if err := ValidateIdentity(b); err != nil {
		return DirectRoom{}, err
	}
	if a == b {
		return DirectRoom{}, fmt.Errorf("%w: direct room needs two distinct identities", ErrInvalidRoom)
	}
	if b < a {
		a, b = b, a
	}
	return DirectRoom{A: a, B: b}, nil
}

// RoomToken returns the direct room token of a and b. Callers must pass
// valid, distinct identities.
func RoomToken(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + RoomSeparator + b
}

// ParseRoom turns a wire token into a Room. A token containing the
// separator is always direct.
func ParseRoom(token string) (Room, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidRoom)
	}
	if len(token) > MaxRoomLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidRoom, MaxRoomLength)
	}
	if !strings.Contains(token, RoomSeparator) {
		return GroupRoom{ID: token}, nil
	}

	parts := strings.Split(token, RoomSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, token)
	}
	room, err := NewDirectRoom(parts[0], parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, token)
	}
	return room, nil
}
