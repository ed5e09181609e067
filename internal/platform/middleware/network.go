// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net"
	"net/http"
	"net/netip"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// # Client Address

/*
TrustProxies honours X-Real-IP and X-Forwarded-For only when the direct peer
sits inside one of the trusted prefixes. For every other peer the headers are
ignored and RemoteAddr stays the socket address.

Parameters:
  - trusted: []netip.Prefix (load balancer or ingress ranges; empty trusts nobody)

Returns:
  - func(http.Handler) http.Handler
*/
func TrustProxies(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		rewritten := chimw.RealIP(next)

		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if peerTrusted(request.RemoteAddr, trusted) {
				rewritten.ServeHTTP(writer, request)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

func peerTrusted(remoteAddr string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ClientIP(&http.Request{RemoteAddr: remoteAddr}))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP is the host part of RemoteAddr. Run TrustProxies first so a
// trusted proxy's forwarded address is already in place.
func ClientIP(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
