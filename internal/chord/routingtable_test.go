package chord

import (
	"testing"

	"chordmr/internal/ring"
)

func testSpace(t *testing.T) ring.Space {
	t.Helper()
	sp, err := ring.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace(8) failed: %v", err)
	}
	return sp
}

func TestNewRoutingTable(t *testing.T) {
	space := testSpace(t)
	self := NodeRef{ID: ring.ID{0x80}, Addr: "127.0.0.1:4000"}

	rt := NewRoutingTable(self, space, 3)
	if !rt.Self().Equal(self) {
		t.Errorf("Self() = %v, expected %v", rt.Self(), self)
	}
	if rt.Space().Bits != 8 {
		t.Errorf("Space().Bits = %d, expected 8", rt.Space().Bits)
	}
}

func TestSetAndGetSuccessor(t *testing.T) {
	space := testSpace(t)
	self := NodeRef{ID: ring.ID{0x80}, Addr: "127.0.0.1:4000"}
	rt := NewRoutingTable(self, space, 3)

	succ := NodeRef{ID: ring.ID{0x90}, Addr: "127.0.0.1:4001"}
	rt.SetSuccessor(0, succ)

	first := rt.FirstSuccessor()
	if first.IsZero() {
		t.Fatal("FirstSuccessor() returned zero value")
	}
	if !first.ID.Equal(succ.ID) {
		t.Errorf("FirstSuccessor() ID = %v, expected %v", first.ID, succ.ID)
	}

	list := rt.SuccessorList()
	if len(list) == 0 {
		t.Fatal("SuccessorList() is empty")
	}
	if !list[0].ID.Equal(succ.ID) {
		t.Errorf("SuccessorList()[0] ID = %v, expected %v", list[0].ID, succ.ID)
	}
}

func TestSetAndGetPredecessor(t *testing.T) {
	space := testSpace(t)
	self := NodeRef{ID: ring.ID{0x80}, Addr: "127.0.0.1:4000"}
	rt := NewRoutingTable(self, space, 3)

	if pred := rt.GetPredecessor(); !pred.IsZero() {
		t.Errorf("initial predecessor should be zero, got %v", pred)
	}

	pred := NodeRef{ID: ring.ID{0x70}, Addr: "127.0.0.1:3999"}
	rt.SetPredecessor(pred)

	result := rt.GetPredecessor()
	if result.IsZero() {
		t.Fatal("GetPredecessor() returned zero after SetPredecessor")
	}
	if !result.ID.Equal(pred.ID) {
		t.Errorf("GetPredecessor() ID = %v, expected %v", result.ID, pred.ID)
	}
}

func TestClosestPrecedingNode(t *testing.T) {
	space := testSpace(t)
	self := NodeRef{ID: ring.ID{0x80}, Addr: "127.0.0.1:4000"} // 128

	rt := NewRoutingTable(self, space, 3)

	finger0 := NodeRef{ID: ring.ID{0x82}, Addr: "127.0.0.1:4002"} // 130
	rt.SetFinger(0, finger0)

	finger2 := NodeRef{ID: ring.ID{0x8C}, Addr: "127.0.0.1:4004"} // 140
	rt.SetFinger(2, finger2)

	finger4 := NodeRef{ID: ring.ID{0x96}, Addr: "127.0.0.1:4006"} // 150
	rt.SetFinger(4, finger4)

	target := ring.ID{0x91} // 145

	result := rt.ClosestPrecedingNode(target)
	if result.IsZero() {
		t.Fatal("ClosestPrecedingNode returned zero value")
	}
	// self(128) < finger0(130) < finger2(140) < target(145) < finger4(150)
	if !result.ID.Equal(finger2.ID) {
		t.Errorf("ClosestPrecedingNode(145) = %v, expected finger2 %v", result.ID, finger2.ID)
	}
}

func TestFingerTable(t *testing.T) {
	space := testSpace(t)
	self := NodeRef{ID: ring.ID{0x00}, Addr: "127.0.0.1:4000"}
	rt := NewRoutingTable(self, space, 3)

	for i := 0; i < 8; i++ {
		rt.SetFinger(i, NodeRef{ID: ring.ID{byte(1 << i)}, Addr: "127.0.0.1:4000"})
	}

	for i := 0; i < 8; i++ {
		finger := rt.GetFinger(i)
		if finger.IsZero() {
			t.Errorf("GetFinger(%d) returned zero value", i)
			continue
		}
		expected := byte(1 << i)
		if finger.ID[0] != expected {
			t.Errorf("GetFinger(%d) ID = %d, expected %d", i, finger.ID[0], expected)
		}
	}
}

func TestPromoteNextSuccessor(t *testing.T) {
	space := testSpace(t)
	self := NodeRef{ID: ring.ID{0x00}, Addr: "127.0.0.1:4000"}
	rt := NewRoutingTable(self, space, 3)

	rt.SetSuccessorList([]NodeRef{
		{ID: ring.ID{0x10}, Addr: "a"},
		{ID: ring.ID{0x20}, Addr: "b"},
		{ID: ring.ID{0x30}, Addr: "c"},
	})

	next := rt.PromoteNextSuccessor()
	if next.Addr != "b" {
		t.Errorf("PromoteNextSuccessor() = %v, expected successor b", next)
	}
	list := rt.SuccessorList()
	if len(list) != 2 || list[0].Addr != "b" || list[1].Addr != "c" {
		t.Errorf("SuccessorList() after promotion = %v, expected [b c]", list)
	}
}
