//go:build !unix
// +build !unix

package loop

import (
	"errors"
	"net"
)

// ErrUnsupportedPlatform indicates the raw UDP socket layer is not
// implemented for this platform.
var ErrUnsupportedPlatform = errors.New("loop: raw udp sockets unsupported on this platform")

func sysSocket(ipv6 bool) (int, error) {
	return -1, ErrUnsupportedPlatform
}

func sysSetV6Only(fd int, on bool) error {
	return ErrUnsupportedPlatform
}

func sysSetBroadcast(fd int, on bool) error {
	return ErrUnsupportedPlatform
}

func sysBind(fd int, addr *net.UDPAddr) error {
	return ErrUnsupportedPlatform
}

func sysLocalAddr(fd int) (*net.UDPAddr, error) {
	return nil, ErrUnsupportedPlatform
}

func sysSendto(fd int, data []byte, dst *net.UDPAddr) error {
	return ErrUnsupportedPlatform
}

func sysTrySendto(fd int, data []byte, dst *net.UDPAddr) bool {
	return false
}

func sysClose(fd int) error {
	return ErrUnsupportedPlatform
}

func isBindFallbackErr(err error) bool {
	return false
}
