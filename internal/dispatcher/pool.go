package dispatcher

import (
	"crypto/tls"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// Pool round-robins a fixed set of fasthttp clients so a slow response on
// one connection never serializes the others.
type Pool struct {
	clients []*fasthttp.Client
	next    atomic.Uint64
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(64),
	}

	clients := make([]*fasthttp.Client, size)
	for i := range clients {
		clients[i] = &fasthttp.Client{
			MaxConnsPerHost:           512,
			MaxIdleConnDuration:       180 * time.Second,
			ReadTimeout:               2 * time.Second,
			WriteTimeout:              2 * time.Second,
			MaxConnWaitTimeout:        500 * time.Millisecond,
			MaxIdemponentCallAttempts: 1,
			DialDualStack:             true,
			NoDefaultUserAgentHeader:  true,
			TLSConfig:                 tlsConfig,
		}
	}
	return &Pool{clients: clients}
}

func (p *Pool) Client() *fasthttp.Client {
	n := p.next.Add(1)
	return p.clients[n%uint64(len(p.clients))]
}

// Warmup opens connections against the API base ahead of the first real
// request, so the TLS handshake is off the containment path.
func (p *Pool) Warmup(baseURL string) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(baseURL + "/gateway")
	req.Header.SetMethod(fasthttp.MethodGet)

	for _, c := range p.clients {
		_ = c.DoTimeout(req, resp, 2*time.Second)
	}
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// RateLimitMonitor tracks per-route rate-limit buckets from Discord's
// X-RateLimit response headers so the executor can fail fast instead of
// burning a 429.
type RateLimitMonitor struct {
	mu      sync.RWMutex
	buckets map[string]bucket
}

func NewRateLimitMonitor() *RateLimitMonitor {
	return &RateLimitMonitor{buckets: make(map[string]bucket)}
}

func (m *RateLimitMonitor) key(route, guildID string) string {
	return route + ":" + guildID
}

// CanExecute reports whether the route has headroom. Unknown routes are
// always allowed.
func (m *RateLimitMonitor) CanExecute(route, guildID string) bool {
	m.mu.RLock()
	b, ok := m.buckets[m.key(route, guildID)]
	m.mu.RUnlock()
	if !ok || time.Now().After(b.resetAt) {
		return true
	}
	return b.remaining > 0
}

// Observe records the rate-limit headers from one response.
func (m *RateLimitMonitor) Observe(resp *fasthttp.Response, route, guildID string) {
	remaining := string(resp.Header.Peek("X-RateLimit-Remaining"))
	reset := string(resp.Header.Peek("X-RateLimit-Reset"))
	if remaining == "" && reset == "" {
		return
	}

	var b bucket
	b.remaining, _ = strconv.Atoi(remaining)
	if reset != "" {
		// Discord sends reset as fractional unix seconds.
		if sec, err := strconv.ParseFloat(reset, 64); err == nil {
			b.resetAt = time.Unix(0, int64(sec*float64(time.Second)))
		}
	}

	m.mu.Lock()
	m.buckets[m.key(route, guildID)] = b
	m.mu.Unlock()
}
