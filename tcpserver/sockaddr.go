/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package tcpserver

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// configureListenSocket applies the non-blocking, close-on-exec,
// SO_REUSEADDR, and (for AF_INET6) V6ONLY settings spec §4.4 requires
// of every listening socket.
func configureListenSocket(fd int, family int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("tcpserver: set nonblock: %w", err)
	}
	if err := unix.SetCloseOnExec(fd); err != nil {
		return fmt.Errorf("tcpserver: set cloexec: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("tcpserver: set reuseaddr: %w", err)
	}
	if family == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			return fmt.Errorf("tcpserver: clear v6only: %w", err)
		}
	}
	return nil
}

func isIPv4(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}

func sockaddr(family int, host string, port int) (unix.Sockaddr, error) {
	if family == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: port}
		if host != "" {
			ip := net.ParseIP(host)
			if ip == nil || ip.To4() == nil {
				return nil, fmt.Errorf("tcpserver: invalid IPv4 address %q", host)
			}
			copy(sa.Addr[:], ip.To4())
		}
		return sa, nil
	}

	sa := &unix.SockaddrInet6{Port: port}
	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() != nil {
			return nil, fmt.Errorf("tcpserver: invalid IPv6 address %q", host)
		}
		copy(sa.Addr[:], ip.To16())
	}
	return sa, nil
}

// peerAddrString renders an accept(2) sockaddr as a numeric "ip:port"
// string; unrecognized address families fall back to a placeholder
// rather than failing the accept.
func peerAddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
	default:
		return "unknown:0"
	}
}
