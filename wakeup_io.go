package reactor

import "golang.org/x/sys/unix"

// writeWakeup and drainWakeup are the platform-independent halves of the
// wakeup descriptor protocol: writing/reading an 8-byte counter works
// identically whether the descriptor is an eventfd or one end of a
// socketpair.
func writeWakeup(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

func drainWakeup(fd int) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		log().Warn("wakeup descriptor read failed", zapErr(err))
		return
	}
	if n != 8 && err == nil {
		log().Warn("wakeup descriptor read unexpected byte count")
	}
}

func closeFd(fd int) {
	if err := unix.Close(fd); err != nil {
		log().Warn("failed to close descriptor", zapErr(err))
	}
}
