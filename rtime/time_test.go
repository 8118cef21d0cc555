package rtime

import "testing"

func TestInvalidIsZero(t *testing.T) {
	if Invalid.Valid() {
		t.Fatal("zero Time must be invalid")
	}
	if Now().Microseconds() <= 0 {
		t.Fatal("Now() must be positive")
	}
}

func TestAddSeconds(t *testing.T) {
	base := Time(1_000_000) // 1.000000
	got := base.AddSeconds(1.5)
	want := Time(2_500_000)
	if got != want {
		t.Fatalf("AddSeconds(1.5) = %d, want %d", got, want)
	}
}

func TestDiffMicroseconds(t *testing.T) {
	a := Time(10)
	b := Time(3)
	if d := a.DiffMicroseconds(b); d != 7 {
		t.Fatalf("diff = %d, want 7", d)
	}
}

func TestString(t *testing.T) {
	tm := Time(1_234_567)
	if got, want := tm.String(), "1.234567"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
