package chat

import "fmt"

// DestinationKind discriminates the two broadcast target shapes.
type DestinationKind int

const (
	DestinationRoom DestinationKind = iota
	DestinationDirect
)

// Destination identifies a broadcast target: a room, or the shared
// conversation between two users. It is a pure value, a function of its
// inputs only, so it can be used directly as a registry map key.
type Destination struct {
	Kind DestinationKind

	// Room target.
	RoomID int64

	// Direct target, canonicalized so both participants resolve to the
	// same destination regardless of who opened the session.
	LowUserID  int64
	HighUserID int64
}

// RoomDestination returns the destination for a room.
func RoomDestination(roomID int64) Destination {
	return Destination{Kind: DestinationRoom, RoomID: roomID}
}

// DirectDestination returns the shared destination for a pair of users.
// The pair is ordered numerically, so DirectDestination(a, b) and
// DirectDestination(b, a) are equal.
func DirectDestination(a, b int64) Destination {
	if a > b {
		a, b = b, a
	}
	return Destination{Kind: DestinationDirect, LowUserID: a, HighUserID: b}
}

// Key returns the stable group name for this destination. The scheme follows
// the wire-visible group names of the service: "room:<id>" and
// "direct:<min>:<max>".
func (d Destination) Key() string {
	if d.Kind == DestinationDirect {
		return fmt.Sprintf("direct:%d:%d", d.LowUserID, d.HighUserID)
	}
	return fmt.Sprintf("room:%d", d.RoomID)
}

func (d Destination) String() string { return d.Key() }
