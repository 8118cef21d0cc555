package reactor

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the running goroutine's id from its own stack trace
// header ("goroutine 123 [running]: ..."). Go deliberately has no public
// API for this; the reactor core needs it only for the same purpose muduo
// uses gettid() for: asserting that thread-affine calls land on the
// goroutine that constructed the owning EventLoop. This is an assertion
// aid, not a scheduling mechanism — nothing here relies on the id being
// stable across a goroutine handing off work, because a loop's owning
// goroutine never does that by contract.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
