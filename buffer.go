package reactor

import (
	"bytes"
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// cheapPrepend is the size of the region reserved at the front of every
// Buffer for in-place header prepending (PrependInt32 of a length field, and
// so on) without a copy.
const cheapPrepend = 8

const initialBufferSize = 1024

// overflowScratchSize is the size of the stack read-ahead buffer ReadFd uses
// so a single readable event can drain more than the buffer's current
// writable space in one syscall.
const overflowScratchSize = 65536

// Buffer is a growable byte arena laid out as
// [prependable | readable | writable], matching the layout and invariants
// described in the reactor core's data model: 0 <= P <= reader <= writer <=
// len(buf), where P is cheapPrepend.
type Buffer struct {
	buf    []byte
	reader int
	writer int
}

// NewBuffer returns an empty Buffer with the given initial writable
// capacity.
func NewBuffer(initialSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = initialBufferSize
	}
	return &Buffer{
		buf:    make([]byte, cheapPrepend+initialSize),
		reader: cheapPrepend,
		writer: cheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writer - b.reader }

// WritableBytes returns the number of bytes available to Append without
// growing the backing array.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writer }

// PrependableBytes returns the number of bytes available to Prepend.
func (b *Buffer) PrependableBytes() int { return b.reader }

// Peek returns the readable region without consuming it. The returned slice
// aliases the buffer and is invalidated by any subsequent mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.reader:b.writer] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.reader += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll resets both cursors to the initial prepend offset, as if the
// buffer were freshly constructed.
func (b *Buffer) RetrieveAll() {
	b.reader = cheapPrepend
	b.writer = cheapPrepend
}

// RetrieveAsString consumes and returns n readable bytes as a copy.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.reader : b.reader+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns every readable byte.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// Append copies data onto the writable end, growing the buffer if
// necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	n := copy(b.buf[b.writer:], data)
	b.writer += n
}

// AppendString is a convenience wrapper over Append.
func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

// EnsureWritable grows the backing array, or slides the readable bytes left
// to recover prependable space, so that at least n bytes are writable.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

// makeSpace implements the slide-or-grow policy: if the sum of trailing
// writable space and leading prependable space (above cheapPrepend) is
// enough, slide the readable bytes down; otherwise grow the backing array.
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+cheapPrepend {
		newBuf := make([]byte, b.writer+n)
		copy(newBuf, b.buf)
		b.buf = newBuf
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[cheapPrepend:], b.buf[b.reader:b.writer])
	b.reader = cheapPrepend
	b.writer = b.reader + readable
}

// Prepend writes data immediately before the readable region. len(data)
// must not exceed PrependableBytes().
func (b *Buffer) Prepend(data []byte) {
	if len(data) > b.PrependableBytes() {
		panic("reactor: Prepend exceeds prependable bytes")
	}
	b.reader -= len(data)
	copy(b.buf[b.reader:], data)
}

// FindCRLF returns the offset (relative to the start of the readable
// region) of the first "\r\n", or -1 if none is present.
func (b *Buffer) FindCRLF() int {
	idx := bytes.Index(b.Peek(), []byte{'\r', '\n'})
	return idx
}

// FindEOL returns the offset of the first '\n' in the readable region, or
// -1 if none is present.
func (b *Buffer) FindEOL() int {
	return bytes.IndexByte(b.Peek(), '\n')
}

// AppendInt8/16/32/64 append a fixed-width big-endian integer.
func (b *Buffer) AppendInt8(x int8) { b.Append([]byte{byte(x)}) }

func (b *Buffer) AppendInt16(x int16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(x))
	b.Append(tmp[:])
}

func (b *Buffer) AppendInt32(x int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(x))
	b.Append(tmp[:])
}

func (b *Buffer) AppendInt64(x int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(x))
	b.Append(tmp[:])
}

// PeekInt8/16/32/64 read a fixed-width big-endian integer without consuming
// it. They panic if ReadableBytes() is insufficient, matching the source's
// assert-on-underflow contract.
func (b *Buffer) PeekInt8() int8 { return int8(b.Peek()[0]) }

func (b *Buffer) PeekInt16() int16 {
	return int16(binary.BigEndian.Uint16(b.Peek()))
}

func (b *Buffer) PeekInt32() int32 {
	return int32(binary.BigEndian.Uint32(b.Peek()))
}

func (b *Buffer) PeekInt64() int64 {
	return int64(binary.BigEndian.Uint64(b.Peek()))
}

// ReadInt8/16/32/64 peek then retrieve a fixed-width big-endian integer.
func (b *Buffer) ReadInt8() int8 {
	x := b.PeekInt8()
	b.Retrieve(1)
	return x
}

func (b *Buffer) ReadInt16() int16 {
	x := b.PeekInt16()
	b.Retrieve(2)
	return x
}

func (b *Buffer) ReadInt32() int32 {
	x := b.PeekInt32()
	b.Retrieve(4)
	return x
}

func (b *Buffer) ReadInt64() int64 {
	x := b.PeekInt64()
	b.Retrieve(8)
	return x
}

// PrependInt8/16/32/64 prepend a fixed-width big-endian integer immediately
// before the readable region.
func (b *Buffer) PrependInt8(x int8) { b.Prepend([]byte{byte(x)}) }

func (b *Buffer) PrependInt16(x int16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(x))
	b.Prepend(tmp[:])
}

func (b *Buffer) PrependInt32(x int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(x))
	b.Prepend(tmp[:])
}

func (b *Buffer) PrependInt64(x int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(x))
	b.Prepend(tmp[:])
}

// ErrWouldBlock is returned by ReadFd when the non-blocking descriptor has
// no data available; it is not a connection error and callers should treat
// it as "nothing happened this readiness event", not as close or fault.
var ErrWouldBlock = errors.New("reactor: read would block")

// ReadFd reads from fd directly into the writable region, using a stack
// overflow buffer so a single readable event can be drained in one syscall
// even when it exceeds the buffer's current writable space. Returns the
// number of bytes read; n == 0 with a nil error means the peer performed an
// orderly shutdown (EOF). ErrWouldBlock signals a spurious readiness event.
func (b *Buffer) ReadFd(fd int) (n int, err error) {
	var overflow [overflowScratchSize]byte

	writable := b.WritableBytes()
	iov := [][]byte{b.buf[b.writer:]}
	if writable < overflowScratchSize {
		iov = append(iov, overflow[:])
	}

	read, rerr := unix.Readv(fd, iov)
	if rerr != nil {
		if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) {
			return 0, ErrWouldBlock
		}
		if errors.Is(rerr, unix.EINTR) {
			return 0, ErrWouldBlock
		}
		return 0, rerr
	}
	if read <= writable {
		b.writer += read
		return read, nil
	}
	b.writer = len(b.buf)
	extra := read - writable
	b.Append(overflow[:extra])
	return read, nil
}
