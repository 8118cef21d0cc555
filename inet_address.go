package reactor

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// InetAddress is an IPv4 socket address, value-typed and comparable,
// grounded on the source's InetAddress (sockaddr_in wrapper).
type InetAddress struct {
	ip   [4]byte
	port uint16
}

// NewInetAddress builds a listening address for the given port. loopbackOnly
// binds to 127.0.0.1 instead of the wildcard address.
func NewInetAddress(port uint16, loopbackOnly bool) InetAddress {
	a := InetAddress{port: port}
	if loopbackOnly {
		a.ip = [4]byte{127, 0, 0, 1}
	}
	return a
}

// ResolveInetAddress parses "host:port" or "ip:port" into an InetAddress,
// resolving host names via the standard resolver.
func ResolveInetAddress(hostport string) (InetAddress, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return InetAddress{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return InetAddress{}, fmt.Errorf("reactor: invalid port %q: %w", portStr, err)
	}
	ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip4", host)
	if err != nil || len(ips) == 0 {
		ip := net.ParseIP(host)
		if ip == nil {
			return InetAddress{}, fmt.Errorf("reactor: cannot resolve host %q", host)
		}
		ips = []net.IP{ip}
	}
	var a InetAddress
	copy(a.ip[:], ips[0].To4())
	a.port = uint16(port)
	return a, nil
}

// IP returns the dotted-quad IPv4 address.
func (a InetAddress) IP() string { return net.IP(a.ip[:]).String() }

// Port returns the port number.
func (a InetAddress) Port() uint16 { return a.port }

// String formats the address as "ip:port", matching sockets::ToIpPort.
func (a InetAddress) String() string {
	return net.JoinHostPort(a.IP(), strconv.Itoa(int(a.port)))
}

func (a InetAddress) sockaddr() unix.Sockaddr {
	return &unix.SockaddrInet4{Port: int(a.port), Addr: a.ip}
}

func inetAddressFromSockaddr(sa unix.Sockaddr) InetAddress {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return InetAddress{ip: s.Addr, port: uint16(s.Port)}
	default:
		return InetAddress{}
	}
}
