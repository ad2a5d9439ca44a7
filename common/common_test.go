package common

import "testing"

func TestMemRefAllocateAndCopy(t *testing.T) {
	m := Allocate([]byte{1, 2, 3})
	if m.Size != 3 || !m.Owned {
		t.Fatalf("unexpected MemRef after Allocate: %+v", m)
	}

	m.Copy([]byte{4, 5})
	if m.Size != 2 || m.Data[0] != 4 || m.Data[1] != 5 {
		t.Fatalf("Copy did not overwrite contents: %+v", m)
	}

	m.Free()
	if m.Data != nil || m.Size != 0 || m.Owned {
		t.Fatalf("Free did not reset MemRef: %+v", m)
	}
}

func TestGlobalStateBytesRoundTrip(t *testing.T) {
	s := NewGlobalState()
	b := s.Bytes()
	if len(b) == 0 {
		t.Fatalf("expected non-empty byte view of GlobalState")
	}
	var back GlobalState
	copy(back.Bytes(), b)
	if back != s {
		t.Fatalf("GlobalState did not survive a round trip through its byte view")
	}
	if s.ViewMatrix[0] != 1 || s.ProjMatrix[5] != 1 {
		t.Fatalf("expected identity matrices in fresh GlobalState")
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(0, 0, 5, 9); got != 5 {
		t.Fatalf("Coalesce(0,0,5,9) = %d, want 5", got)
	}
	if got := Coalesce("", "", ""); got != "" {
		t.Fatalf("Coalesce of all-zero values should return zero value")
	}
}
