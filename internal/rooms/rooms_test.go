package rooms

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestJoin_SnapshotGrowsWithEachMember(t *testing.T) {
	s := NewState(0)

	for n := 0; n < DefaultCapacity; n++ {
		id := fmt.Sprintf("conn-%d", n)
		s.Register(id)

		snapshot, err := s.Join(id, "room-a", fmt.Sprintf("user-%d", n), "client")
		if err != nil {
			t.Fatalf("join %d: %v", n, err)
		}
		if len(snapshot) != n {
			t.Fatalf("join %d: snapshot has %d entries, want %d", n, len(snapshot), n)
		}
		for i, m := range snapshot {
			want := Member{ID: fmt.Sprintf("conn-%d", i), Name: fmt.Sprintf("user-%d", i), Type: "client"}
			if m != want {
				t.Fatalf("join %d: snapshot[%d]=%+v, want %+v", n, i, m, want)
			}
		}
	}

	if got := s.MemberCount("room-a"); got != DefaultCapacity {
		t.Fatalf("MemberCount=%d, want %d", got, DefaultCapacity)
	}
}

func TestJoin_FifthMemberRejected(t *testing.T) {
	s := NewState(0)

	for n := 0; n < DefaultCapacity; n++ {
		id := fmt.Sprintf("conn-%d", n)
		s.Register(id)
		if _, err := s.Join(id, "room-a", "", ""); err != nil {
			t.Fatalf("join %d: %v", n, err)
		}
	}

	s.Register("late")
	_, err := s.Join("late", "room-a", "Eve", "lawyer")
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err=%v, want ErrRoomFull", err)
	}
	if got := s.MemberCount("room-a"); got != DefaultCapacity {
		t.Fatalf("MemberCount=%d after rejected join, want %d", got, DefaultCapacity)
	}
	if _, ok := s.RoomOf("late"); ok {
		t.Fatalf("rejected connection must not be mapped to a room")
	}

	// The profile is still recorded, so a retry into another room keeps it.
	if got := s.Profile("late"); got.Name != "Eve" || got.Type != "lawyer" {
		t.Fatalf("Profile=%+v, want name=Eve type=lawyer", got)
	}
	snapshot, err := s.Join("late", "room-b", "", "")
	if err != nil {
		t.Fatalf("retry join: %v", err)
	}
	if len(snapshot) != 0 {
		t.Fatalf("retry snapshot has %d entries, want 0", len(snapshot))
	}
}

func TestJoin_DefaultsAppliedForEmptyFields(t *testing.T) {
	s := NewState(0)
	s.Register("a")
	if _, err := s.Join("a", "room-a", "", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	got := s.Profile("a")
	want := Member{ID: "a", Name: DefaultName, Type: DefaultType}
	if got != want {
		t.Fatalf("Profile=%+v, want %+v", got, want)
	}
}

func TestJoin_SecondJoinRejected(t *testing.T) {
	s := NewState(0)
	s.Register("a")
	if _, err := s.Join("a", "room-a", "Alice", "client"); err != nil {
		t.Fatalf("join: %v", err)
	}

	for _, roomID := range []string{"room-a", "room-b"} {
		if _, err := s.Join("a", roomID, "Alice", "client"); !errors.Is(err, ErrAlreadyJoined) {
			t.Fatalf("rejoin into %s: err=%v, want ErrAlreadyJoined", roomID, err)
		}
	}

	if got := s.MemberCount("room-a"); got != 1 {
		t.Fatalf("MemberCount(room-a)=%d, want 1", got)
	}
	if got := s.MemberCount("room-b"); got != 0 {
		t.Fatalf("MemberCount(room-b)=%d, want 0", got)
	}
}

func TestPeers_ExcludesSelfAndOtherRooms(t *testing.T) {
	s := NewState(0)
	for _, join := range []struct{ id, room string }{
		{"a", "room-1"},
		{"b", "room-1"},
		{"c", "room-2"},
	} {
		s.Register(join.id)
		if _, err := s.Join(join.id, join.room, "", ""); err != nil {
			t.Fatalf("join %s: %v", join.id, err)
		}
	}

	if got := s.Peers("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("Peers(a)=%v, want [b]", got)
	}
	if got := s.Peers("c"); len(got) != 0 {
		t.Fatalf("Peers(c)=%v, want empty", got)
	}
	if got := s.Peers("unknown"); got != nil {
		t.Fatalf("Peers(unknown)=%v, want nil", got)
	}
}

func TestRemove_ReturnsFormerRoommates(t *testing.T) {
	s := NewState(0)
	for _, id := range []string{"a", "b", "c"} {
		s.Register(id)
		if _, err := s.Join(id, "room-1", "", ""); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	roomID, peers := s.Remove("b")
	if roomID != "room-1" {
		t.Fatalf("roomID=%q, want room-1", roomID)
	}
	if !reflect.DeepEqual(peers, []string{"a", "c"}) {
		t.Fatalf("peers=%v, want [a c]", peers)
	}
	if got := s.MemberCount("room-1"); got != 2 {
		t.Fatalf("MemberCount=%d, want 2", got)
	}
}

func TestRemove_IsIdempotent(t *testing.T) {
	s := NewState(0)
	s.Register("a")
	if _, err := s.Join("a", "room-1", "", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	for i := 0; i < 3; i++ {
		s.Remove("a")
	}
	if _, peers := s.Remove("never-registered"); peers != nil {
		t.Fatalf("removing an unknown connection returned peers %v", peers)
	}
	if got := s.MemberCount("room-1"); got != 0 {
		t.Fatalf("MemberCount=%d, want 0", got)
	}
}

func TestRemove_EmptyRoomIsDeletedAndIDReusable(t *testing.T) {
	s := NewState(2)
	s.Register("a")
	s.Register("b")
	if _, err := s.Join("a", "room-1", "", ""); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := s.Join("b", "room-1", "", ""); err != nil {
		t.Fatalf("join b: %v", err)
	}

	s.Remove("a")
	s.Remove("b")

	// A drained room frees its capacity for new joins under the same id.
	s.Register("c")
	if _, err := s.Join("c", "room-1", "", ""); err != nil {
		t.Fatalf("join into drained room: %v", err)
	}
	if got := s.Members("room-1"); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("Members=%v, want [c]", got)
	}
}

func TestProfile_UnknownIDFallsBackToDefaults(t *testing.T) {
	s := NewState(0)
	got := s.Profile("ghost")
	want := Member{ID: "ghost", Name: DefaultName, Type: DefaultType}
	if got != want {
		t.Fatalf("Profile=%+v, want %+v", got, want)
	}
}
