//go:build unix
// +build unix

package loop

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

func sysSocket(ipv6 bool) (int, error) {
	family := unix.AF_INET
	if ipv6 {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

func sysSetV6Only(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v)
}

func sysSetBroadcast(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, v)
}

func sysBind(fd int, addr *net.UDPAddr) error {
	sa, err := udpAddrToSockaddr(addr)
	if err != nil {
		return err
	}
	return unix.Bind(fd, sa)
}

func sysLocalAddr(fd int) (*net.UDPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	return sockaddrToUDPAddr(sa)
}

func sysSendto(fd int, data []byte, dst *net.UDPAddr) error {
	sa, err := udpAddrToSockaddr(dst)
	if err != nil {
		return err
	}
	return unix.Sendto(fd, data, 0, sa)
}

func sysTrySendto(fd int, data []byte, dst *net.UDPAddr) bool {
	sa, err := udpAddrToSockaddr(dst)
	if err != nil {
		return false
	}
	return unix.Sendto(fd, data, unix.MSG_DONTWAIT, sa) == nil
}

func sysClose(fd int) error {
	return unix.Close(fd)
}

// isBindFallbackErr reports whether a v6-only bind attempt failed in a way
// that warrants retrying with the default bind mode.
func isBindFallbackErr(err error) bool {
	return errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.ENOPROTOOPT) ||
		errors.Is(err, unix.EAFNOSUPPORT)
}

func udpAddrToSockaddr(addr *net.UDPAddr) (unix.Sockaddr, error) {
	if addr == nil || addr.IP == nil {
		return nil, errors.New("loop: address without IP")
	}

	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}

	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("loop: unrepresentable IP %s", addr.IP)
	}
	sa := &unix.SockaddrInet6{Port: addr.Port, ZoneId: zoneID(addr.Zone)}
	copy(sa.Addr[:], ip6)
	return sa, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) (*net.UDPAddr, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]), Port: sa.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.UDPAddr{IP: ip, Port: sa.Port, Zone: zoneName(sa.ZoneId)}, nil
	default:
		return nil, fmt.Errorf("loop: unexpected sockaddr type %T", sa)
	}
}

func zoneID(zone string) uint32 {
	if zone == "" {
		return 0
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0
	}
	return uint32(ifi.Index)
}

func zoneName(id uint32) string {
	if id == 0 {
		return ""
	}
	ifi, err := net.InterfaceByIndex(int(id))
	if err != nil {
		return ""
	}
	return ifi.Name
}
