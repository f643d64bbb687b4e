package store

import "github.com/roach88/mallet/internal/event"

// Direction tells which side of the proxy originated an event.
type Direction int

const (
	// ClientToServer events were captured on the client-facing channel.
	ClientToServer Direction = iota
	// ServerToClient events were captured on any other channel.
	ServerToClient
)

// String returns the label shown in the "Direction" column.
func (d Direction) String() string {
	if d == ClientToServer {
		return "Client to Proxy"
	}
	return "Proxy to Server"
}

// Direction derives the direction of e by comparing its channel with the
// channel of the first event in the store.
//
// Returns an EMPTY_STORE_DIRECTION error if the store has no events.
func (s *Store) Direction(e event.Event) (Direction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return 0, event.NewError(event.ErrCodeEmptyStoreDirection, "direction requires at least one event")
	}
	if s.events[0].ChannelID() == e.ChannelID() {
		return ClientToServer, nil
	}
	return ServerToClient, nil
}

// DirectionAt derives the direction of the event at index i.
func (s *Store) DirectionAt(i int) (Direction, error) {
	e, err := s.Get(i)
	if err != nil {
		return 0, err
	}
	return s.Direction(e)
}

// ClientChannel returns the channel of the first event, the channel treated
// as the client-facing side.
func (s *Store) ClientChannel() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return "", event.NewError(event.ErrCodeEmptyStoreDirection, "no events recorded")
	}
	return s.events[0].ChannelID(), nil
}
