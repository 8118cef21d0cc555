package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// createNonblockingSocketOrDie mirrors sockets::CreateNonblockingOrDie: a
// failure here is a resource-exhaustion condition the process cannot
// meaningfully recover from, so it aborts via log().Fatal.
func createNonblockingSocketOrDie() int {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		log().Fatal("failed to create non-blocking socket", zapErr(err))
		panic(err)
	}
	return fd
}

func bindOrDie(fd int, addr InetAddress) {
	if err := unix.Bind(fd, addr.sockaddr()); err != nil {
		log().Fatal("failed to bind socket", zapErr(err), zap.String("addr", addr.String()))
		panic(err)
	}
}

func listenOrDie(fd int) {
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		log().Fatal("failed to listen on socket", zapErr(err))
		panic(err)
	}
}

// acceptNonblocking wraps accept4(2); err is the raw errno when no
// connection was ready (EAGAIN/EINTR) or the process is out of descriptors
// (EMFILE), both of which the acceptor itself recovers from.
func acceptNonblocking(listenFd int) (connFd int, peer InetAddress, err error) {
	nfd, sa, aerr := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		return -1, InetAddress{}, aerr
	}
	return nfd, inetAddressFromSockaddr(sa), nil
}

func connectNonblocking(fd int, addr InetAddress) error {
	return unix.Connect(fd, addr.sockaddr())
}

func closeSocket(fd int) error {
	if err := unix.Close(fd); err != nil {
		log().Error("failed to close socket", zapErr(err))
		return err
	}
	return nil
}

func shutdownWrite(fd int) {
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		log().Error("failed to shutdown write side", zapErr(err))
	}
}

func getSocketError(fd int) int {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return int(err.(unix.Errno))
	}
	return errno
}

func getLocalAddr(fd int) InetAddress {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		log().Error("getsockname failed", zapErr(err))
		return InetAddress{}
	}
	return inetAddressFromSockaddr(sa)
}

func getPeerAddr(fd int) InetAddress {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		log().Error("getpeername failed", zapErr(err))
		return InetAddress{}
	}
	return inetAddressFromSockaddr(sa)
}

// isSelfConnect detects the pathological case where a non-blocking connect
// raced with an ephemeral port reuse and ended up connected to itself.
func isSelfConnect(fd int) bool {
	local := getLocalAddr(fd)
	peer := getPeerAddr(fd)
	return local.port == peer.port && local.ip == peer.ip
}

func setReuseAddr(fd int, on bool) {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on)); err != nil {
		log().Error("SO_REUSEADDR failed", zapErr(err))
	}
}

func setReusePort(fd int, on bool) {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on)); err != nil {
		log().Error("SO_REUSEPORT failed", zapErr(err))
	}
}

func setTCPNoDelay(fd int, on bool) {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on)); err != nil {
		log().Error("TCP_NODELAY failed", zapErr(err))
	}
}

func setKeepAlive(fd int, on bool) {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on)); err != nil {
		log().Error("SO_KEEPALIVE failed", zapErr(err))
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
