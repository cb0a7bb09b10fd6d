package dnsserver

import (
	"net/netip"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter table; it is reset when full.
const maxTrackedClients = 10000

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[netip.Addr]*rate.Limiter
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[netip.Addr]*rate.Limiter),
	}
}

// Allow reports whether client may be answered now.
func (l *clientLimiter) Allow(client netip.Addr) bool {
	l.mu.Lock()
	lim, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.clients = make(map[netip.Addr]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[client] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
