package core

import (
	"reflect"
	"testing"
)

func TestScopeRunsCallbacksOnceInOrder(t *testing.T) {
	s := NewScope()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		s.Add(func() { got = append(got, i) })
	}
	s.Dispose()
	s.Dispose()
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("unexpected order %v", got)
	}
	if !s.Disposed() {
		t.Fatalf("expected disposed scope")
	}
}

func TestScopeAddAfterDisposeRunsImmediately(t *testing.T) {
	s := NewScope()
	s.Dispose()
	ran := false
	s.Add(func() { ran = true })
	if !ran {
		t.Fatalf("callback added to a disposed scope must run immediately")
	}
	s.Add(nil)
}

func TestScopeChildDisposedWithParent(t *testing.T) {
	parent := NewScope()
	child := parent.Child()
	ran := 0
	child.Add(func() { ran++ })
	parent.Dispose()
	if !child.Disposed() || ran != 1 {
		t.Fatalf("child not disposed with parent (ran=%d)", ran)
	}
}

func TestScopeReentrantAddDuringDispose(t *testing.T) {
	s := NewScope()
	inner := false
	s.Add(func() { s.Add(func() { inner = true }) })
	s.Dispose()
	if !inner {
		t.Fatalf("callback registered during disposal must still run")
	}
}
