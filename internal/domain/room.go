package domain

import "fmt"

type GroupID string

func (id *GroupID) UnmarshalJSON(data []byte) error {
	s, err := decodeID(data)
	if err != nil {
		return err
	}
	*id = GroupID(s)
	return nil
}

type Group struct {
	ID   GroupID `json:"id"`
	Name string  `json:"name"`
}

// RoomKind separates the chat broadcast scope of a group from its call scope.
type RoomKind string

const (
	RoomGroup RoomKind = "group"
	RoomCall  RoomKind = "call"
)

// RoomKey names one broadcast scope. Both kinds are owned by a group, so
// subscribing to either requires group membership.
type RoomKey struct {
	Kind  RoomKind
	Group GroupID
}

func GroupRoom(id GroupID) RoomKey { return RoomKey{Kind: RoomGroup, Group: id} }
func CallRoom(id GroupID) RoomKey  { return RoomKey{Kind: RoomCall, Group: id} }

func (k RoomKey) String() string {
	return fmt.Sprintf("%s_%s", k.Kind, k.Group)
}
