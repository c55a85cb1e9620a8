package hub

import "github.com/google/uuid"

// roomIndex keeps the room→members and member→rooms mappings as duals
// of each other. It is owned exclusively by the hub goroutine; every
// read happens between mutations, so callers always see a consistent
// snapshot. Rooms exist implicitly while they have at least one member
// and are dropped the moment membership reaches zero.
type roomIndex struct {
	members map[string]map[uuid.UUID]struct{}
	rooms   map[uuid.UUID]map[string]struct{}
}

func newRoomIndex() *roomIndex {
	return &roomIndex{
		members: make(map[string]map[uuid.UUID]struct{}),
		rooms:   make(map[uuid.UUID]map[string]struct{}),
	}
}

// join adds the connection to the room. Returns false if it was
// already a member (joining twice is a no-op, not an error).
func (ri *roomIndex) join(roomID string, id uuid.UUID) bool {
	room, ok := ri.members[roomID]
	if !ok {
		room = make(map[uuid.UUID]struct{})
		ri.members[roomID] = room
	}
	if _, exists := room[id]; exists {
		return false
	}
	room[id] = struct{}{}

	joined, ok := ri.rooms[id]
	if !ok {
		joined = make(map[string]struct{})
		ri.rooms[id] = joined
	}
	joined[roomID] = struct{}{}
	return true
}

// leave removes the connection from the room, deleting the room entry
// if it empties. Returns false if the connection was not a member.
func (ri *roomIndex) leave(roomID string, id uuid.UUID) bool {
	room, ok := ri.members[roomID]
	if !ok {
		return false
	}
	if _, exists := room[id]; !exists {
		return false
	}
	delete(room, id)
	if len(room) == 0 {
		delete(ri.members, roomID)
	}

	if joined, ok := ri.rooms[id]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(ri.rooms, id)
		}
	}
	return true
}

// leaveAll removes the connection from every room it belongs to and
// returns the rooms it left. Used on disconnect.
func (ri *roomIndex) leaveAll(id uuid.UUID) []string {
	joined, ok := ri.rooms[id]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
		room := ri.members[roomID]
		delete(room, id)
		if len(room) == 0 {
			delete(ri.members, roomID)
		}
	}
	delete(ri.rooms, id)
	return left
}

// membersOf returns a copy of the room's member set. The copy never
// aliases index state, so fanout can use it freely.
func (ri *roomIndex) membersOf(roomID string) []uuid.UUID {
	room, ok := ri.members[roomID]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}

func (ri *roomIndex) contains(roomID string, id uuid.UUID) bool {
	room, ok := ri.members[roomID]
	if !ok {
		return false
	}
	_, exists := room[id]
	return exists
}

func (ri *roomIndex) roomCount() int {
	return len(ri.members)
}
