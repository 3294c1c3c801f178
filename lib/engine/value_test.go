package engine

import (
	"reflect"
	"testing"
)

// TestCloneIsolation tests that a clone shares no state with its origin
func TestCloneIsolation(t *testing.T) {
	h := NewHashValue()
	h.HashSet("a", "1")
	c := h.Clone()
	h.HashSet("a", "changed")
	h.HashSet("b", "2")

	if v, _ := c.HashGet("a"); v != "1" {
		t.Errorf("clone should keep original field value, got %q", v)
	}
	if c.HashLen() != 1 {
		t.Errorf("clone should keep original length, got %d", c.HashLen())
	}

	l := NewListValue()
	l.ListPushTail("x")
	lc := l.Clone()
	l.ListPushTail("y")
	if lc.ListLen() != 1 {
		t.Errorf("list clone should keep original length, got %d", lc.ListLen())
	}

	s := NewSetValue()
	s.SetAdd("m")
	sc := s.Clone()
	s.SetRem("m")
	if !sc.SetHas("m") {
		t.Error("set clone should keep original membership")
	}
}

// TestListRangeNormalization tests negative index handling on the raw value
func TestListRangeNormalization(t *testing.T) {
	l := NewListValue()
	for _, e := range []string{"a", "b", "c"} {
		l.ListPushTail(e)
	}

	cases := []struct {
		start, stop int
		want        []string
	}{
		{0, 2, []string{"a", "b", "c"}},
		{0, -1, []string{"a", "b", "c"}},
		{-1, -1, []string{"c"}},
		{-5, 0, []string{"a"}},
		{1, 100, []string{"b", "c"}},
		{2, 0, nil},
		{5, 10, nil},
	}
	for _, c := range cases {
		got := l.ListRange(c.start, c.stop)
		if len(got) == 0 && len(c.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ListRange(%d,%d) = %v, want %v", c.start, c.stop, got, c.want)
		}
	}
}

// TestSetInsertionOrder tests deterministic member enumeration
func TestSetInsertionOrder(t *testing.T) {
	s := NewSetValue()
	for _, m := range []string{"c", "a", "b"} {
		s.SetAdd(m)
	}
	s.SetAdd("a") // duplicate keeps position

	if got := s.SetMembers(); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Errorf("unexpected member order: %v", got)
	}

	s.SetRem("a")
	s.SetAdd("a") // removed then re-added goes to the back
	if got := s.SetMembers(); !reflect.DeepEqual(got, []string{"c", "b", "a"}) {
		t.Errorf("unexpected member order after re-add: %v", got)
	}
}
