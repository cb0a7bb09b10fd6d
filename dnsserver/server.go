package dnsserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/docker-dns-registry/interfaces"
	"go.uber.org/multierr"
)

// DefaultListenAddr is the address the DNS server binds when none is configured.
const DefaultListenAddr = "0.0.0.0:53"

// Config configures the DNS server and its handler.
type Config struct {
	// ListenAddr is the UDP address to bind.
	ListenAddr string

	// TCP also binds a TCP listener on the same address and port.
	TCP bool

	// Domain is an optional zone suffix stripped from query names.
	Domain string

	// TTL of answered records, in seconds.
	TTL uint32

	// Upstream is a host:port resolver receiving queries for unknown names.
	// Empty disables forwarding.
	Upstream string

	// UpstreamTimeout bounds a forwarded query.
	UpstreamTimeout time.Duration

	// RateLimit is the sustained number of queries per second allowed per client.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the per-client burst size.
	RateBurst int

	// Log is the structured logger.
	Log *slog.Logger
}

func (c *Config) setDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 2 * time.Second
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// Server serves a Handler over UDP and, optionally, TCP.
type Server struct {
	cfg     Config
	log     *slog.Logger
	handler dns.Handler

	udp   *dns.Server
	tcp   *dns.Server
	errCh chan error

	mu      sync.Mutex
	addr    net.Addr
	running []*dns.Server
}

// New creates a DNS server answering from resolver. Call Start or Run to serve.
func New(cfg Config, resolver interfaces.Resolver) *Server {
	cfg.setDefaults()
	return &Server{
		cfg:     cfg,
		log:     cfg.Log.With("component", "dns"),
		handler: NewHandler(resolver, cfg),
		errCh:   make(chan error, 2),
	}
}

// Start binds the listeners and serves in the background.
// It returns once the server is ready to answer queries.
func (s *Server) Start() error {
	pc, err := net.ListenPacket("udp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on udp %s: %w", s.cfg.ListenAddr, err)
	}
	s.udp = &dns.Server{PacketConn: pc, Handler: s.handler, MsgAcceptFunc: acceptQuery}

	if s.cfg.TCP {
		// same port as UDP, which matters when ListenAddr has port 0
		l, err := net.Listen("tcp", pc.LocalAddr().String())
		if err != nil {
			pc.Close()
			return fmt.Errorf("could not listen on tcp %s: %w", pc.LocalAddr(), err)
		}
		s.tcp = &dns.Server{Listener: l, Handler: s.handler, MsgAcceptFunc: acceptQuery}
	}

	for _, srv := range []*dns.Server{s.udp, s.tcp} {
		if srv == nil {
			continue
		}
		if err := s.activate(srv); err != nil {
			pc.Close()
			if s.tcp != nil {
				s.tcp.Listener.Close()
			}
			_ = s.Shutdown(context.Background())
			return err
		}
	}

	s.mu.Lock()
	s.addr = pc.LocalAddr()
	s.mu.Unlock()

	s.log.Info("DNS server started", "addr", pc.LocalAddr().String(), "tcp", s.cfg.TCP, "upstream", s.cfg.Upstream)
	return nil
}

func (s *Server) activate(srv *dns.Server) error {
	started := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(started) }

	go func() {
		if err := srv.ActivateAndServe(); err != nil {
			s.errCh <- err
		}
	}()

	select {
	case <-started:
		s.mu.Lock()
		s.running = append(s.running, srv)
		s.mu.Unlock()
		return nil
	case err := <-s.errCh:
		return fmt.Errorf("could not start dns server: %w", err)
	}
}

// Run starts the server and blocks until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-s.errCh:
		return multierr.Append(fmt.Errorf("dns server failed: %w", err), s.Shutdown(context.Background()))
	}
}

// Addr returns the bound UDP address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops every listener. Calling it more than once is safe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.running = nil
	s.mu.Unlock()

	if len(running) == 0 {
		return nil
	}

	var err error
	for _, srv := range running {
		err = multierr.Append(err, srv.ShutdownContext(ctx))
	}
	s.log.Info("DNS server stopped")
	return err
}

// acceptQuery accepts every message that is not a response, leaving malformed
// queries to the handler.
func acceptQuery(dh dns.Header) dns.MsgAcceptAction {
	const qr = 1 << 15
	if dh.Bits&qr != 0 {
		return dns.MsgIgnore
	}
	return dns.MsgAccept
}
