// Package rooms holds the relay's in-memory room and connection registry.
//
// State is a plain data structure with no locking and no transport
// dependencies; the signaling server owns one instance and serializes all
// access. That keeps every transition unit-testable without a live socket.
package rooms

import (
	"errors"

	"github.com/samber/lo"
)

const (
	// DefaultCapacity is the maximum number of members per room. The fifth
	// join into a room is rejected with ErrRoomFull.
	DefaultCapacity = 4

	// DefaultName and DefaultType are applied when a join request omits the
	// display name or participant type.
	DefaultName = "Guest"
	DefaultType = "client"
)

var (
	// ErrRoomFull is returned when a join would exceed the room capacity.
	ErrRoomFull = errors.New("rooms: room is full")

	// ErrAlreadyJoined is returned when a connection that already belongs to a
	// room attempts a second join. A connection is a member of at most one
	// room for its whole lifetime.
	ErrAlreadyJoined = errors.New("rooms: connection already in a room")
)

// Member describes one room member as exposed to other clients.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// State is the relay's registry: connection profiles plus room membership.
//
// Room member lists preserve join order. An empty room is deleted so room ids
// can be reused once everyone has left.
type State struct {
	capacity int

	roomOf map[string]string
	nameOf map[string]string
	typeOf map[string]string

	members map[string][]string
}

// NewState returns an empty State. capacity <= 0 selects DefaultCapacity.
func NewState(capacity int) *State {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &State{
		capacity: capacity,
		roomOf:   make(map[string]string),
		nameOf:   make(map[string]string),
		typeOf:   make(map[string]string),
		members:  make(map[string][]string),
	}
}

// Register records a new connection with the default profile and no room.
func (s *State) Register(id string) {
	s.nameOf[id] = DefaultName
	s.typeOf[id] = DefaultType
}

// Join moves a connection into the named room and returns the snapshot of the
// other members already there, in join order.
//
// The profile is recorded before the capacity check, so a rejected requester
// still has its name/type on file for a later retry into another room. On
// ErrRoomFull the connection gains no room membership.
func (s *State) Join(id, roomID, name, participantType string) ([]Member, error) {
	if _, ok := s.roomOf[id]; ok {
		return nil, ErrAlreadyJoined
	}

	if name == "" {
		name = DefaultName
	}
	if participantType == "" {
		participantType = DefaultType
	}
	s.nameOf[id] = name
	s.typeOf[id] = participantType

	if len(s.members[roomID]) >= s.capacity {
		return nil, ErrRoomFull
	}

	s.members[roomID] = append(s.members[roomID], id)
	s.roomOf[id] = roomID

	others := lo.Filter(s.members[roomID], func(memberID string, _ int) bool {
		return memberID != id
	})
	return lo.Map(others, func(memberID string, _ int) Member {
		return s.Profile(memberID)
	}), nil
}

// Profile returns the member view of a connection. Unknown ids fall back to
// the default name/type, matching the fallback the forwarding path applies
// when a caller id is stale.
func (s *State) Profile(id string) Member {
	m := Member{ID: id, Name: DefaultName, Type: DefaultType}
	if name, ok := s.nameOf[id]; ok {
		m.Name = name
	}
	if t, ok := s.typeOf[id]; ok {
		m.Type = t
	}
	return m
}

// RoomOf returns the room a connection has joined, if any.
func (s *State) RoomOf(id string) (string, bool) {
	roomID, ok := s.roomOf[id]
	return roomID, ok
}

// Peers returns the other members of the connection's room, in join order.
// A connection with no room has no peers.
func (s *State) Peers(id string) []string {
	roomID, ok := s.roomOf[id]
	if !ok {
		return nil
	}
	return lo.Filter(s.members[roomID], func(memberID string, _ int) bool {
		return memberID != id
	})
}

// Remove deletes a connection from the registry and from its room, returning
// the former roommates so the caller can broadcast the departure. Removing an
// unknown connection is a no-op.
func (s *State) Remove(id string) (roomID string, peers []string) {
	roomID, hadRoom := s.roomOf[id]
	if hadRoom {
		peers = lo.Without(s.members[roomID], id)
		if len(peers) == 0 {
			delete(s.members, roomID)
		} else {
			s.members[roomID] = peers
		}
	}

	delete(s.roomOf, id)
	delete(s.nameOf, id)
	delete(s.typeOf, id)
	return roomID, peers
}

// MemberCount reports the current size of a room. Unknown rooms have size 0.
func (s *State) MemberCount(roomID string) int {
	return len(s.members[roomID])
}

// Members returns the member list of a room in join order.
func (s *State) Members(roomID string) []string {
	return append([]string(nil), s.members[roomID]...)
}
