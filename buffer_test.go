package reactor

import "testing"

func TestBufferInvariantsOnConstruction(t *testing.T) {
	b := NewBuffer(1024)
	if b.ReadableBytes() != 0 {
		t.Fatalf("ReadableBytes() = %d, want 0", b.ReadableBytes())
	}
	if b.WritableBytes() != 1024 {
		t.Fatalf("WritableBytes() = %d, want 1024", b.WritableBytes())
	}
	if b.PrependableBytes() != cheapPrepend {
		t.Fatalf("PrependableBytes() = %d, want %d", b.PrependableBytes(), cheapPrepend)
	}
}

func TestAppendRetrieveRoundTrip(t *testing.T) {
	b := NewBuffer(64)
	payload := []byte("hello, reactor")
	b.Append(payload)
	if got := b.RetrieveAsString(len(payload)); got != string(payload) {
		t.Fatalf("RetrieveAsString = %q, want %q", got, payload)
	}
	if b.ReadableBytes() != 0 {
		t.Fatalf("buffer not empty after full retrieve")
	}
}

func TestEnsureWritableSlidesBeforeGrowing(t *testing.T) {
	b := NewBuffer(16)
	b.Append([]byte("0123456789")) // 10 bytes, 6 writable left
	b.Retrieve(8)                  // reader now far ahead, 2 bytes readable
	capBefore := len(b.buf)
	b.EnsureWritable(10) // deficit recoverable by sliding, should not grow
	if len(b.buf) != capBefore {
		t.Fatalf("EnsureWritable grew the buffer when slide should have sufficed: %d -> %d", capBefore, len(b.buf))
	}
	if b.RetrieveAllAsString() != "89" {
		t.Fatalf("readable content corrupted by slide")
	}
}

func TestEnsureWritableGrows(t *testing.T) {
	b := NewBuffer(4)
	b.Append([]byte("abcd"))
	b.EnsureWritable(100)
	if b.WritableBytes() < 100 {
		t.Fatalf("WritableBytes() = %d, want >= 100", b.WritableBytes())
	}
	if b.RetrieveAllAsString() != "abcd" {
		t.Fatal("content corrupted by grow")
	}
}

func TestPrependFitsCheapPrepend(t *testing.T) {
	b := NewBuffer(64)
	b.Append([]byte("payload"))
	b.Prepend([]byte{1, 2, 3, 4})
	if b.PrependableBytes() != cheapPrepend-4 {
		t.Fatalf("PrependableBytes() = %d, want %d", b.PrependableBytes(), cheapPrepend-4)
	}
	got := b.Peek()
	if got[0] != 1 || got[3] != 4 {
		t.Fatalf("prepend bytes not in place: %v", got[:4])
	}
}

func TestBigEndianRoundTrip(t *testing.T) {
	b := NewBuffer(64)
	b.AppendInt32(-12345)
	if got := b.ReadInt32(); got != -12345 {
		t.Fatalf("ReadInt32() = %d, want -12345", got)
	}
	b.AppendInt64(1 << 40)
	if got := b.ReadInt64(); got != 1<<40 {
		t.Fatalf("ReadInt64() = %d, want %d", got, int64(1)<<40)
	}
	b.AppendInt16(-7)
	if got := b.ReadInt16(); got != -7 {
		t.Fatalf("ReadInt16() = %d, want -7", got)
	}
	b.AppendInt8(5)
	if got := b.ReadInt8(); got != 5 {
		t.Fatalf("ReadInt8() = %d, want 5", got)
	}
}

func TestFindCRLFAndEOL(t *testing.T) {
	b := NewBuffer(64)
	b.AppendString("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	if idx := b.FindCRLF(); idx != 14 {
		t.Fatalf("FindCRLF() = %d, want 14", idx)
	}
	if idx := b.FindEOL(); idx != 15 {
		t.Fatalf("FindEOL() = %d, want 15", idx)
	}
}

func TestRetrieveAllResetsToCheapPrepend(t *testing.T) {
	b := NewBuffer(64)
	b.Append([]byte("data"))
	b.RetrieveAll()
	if b.reader != cheapPrepend || b.writer != cheapPrepend {
		t.Fatalf("RetrieveAll() did not reset cursors to %d: reader=%d writer=%d", cheapPrepend, b.reader, b.writer)
	}
}
