package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/lib/monitor"
	"github.com/MasterHesse/Crab-Cage/lib/persistence"
	"github.com/MasterHesse/Crab-Cage/rpc/common"
	"github.com/panjf2000/ants/v2"
)

var Logger = common.GetLogger("server")

// Version is reported by the INFO command.
var Version = "dev"

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// Server accepts RESP connections and dispatches commands to the engine.
// Each connection is handled by a goroutine from a bounded pool, so the
// number of concurrently served clients never exceeds MaxClients.
type Server struct {
	config common.ServerConfig

	eng  *engine.Engine
	pers *persistence.Manager
	mon  *monitor.Monitor

	listener net.Listener
	pool     *ants.Pool
	metrics  *http.Server

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server around an already booted engine. The
// persistence manager may be nil when durability is disabled.
//
// Usage:
//
//	s := server.NewServer(config, eng, pers, mon)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewServer(
	config common.ServerConfig,
	eng *engine.Engine,
	pers *persistence.Manager,
	mon *monitor.Monitor,
) *Server {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created server")
	Logger.Infof(config.String())

	return &Server{
		config: config,
		eng:    eng,
		pers:   pers,
		mon:    mon,
	}
}

// Serve opens the listener and blocks accepting connections until the
// server is closed.
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return errors.New("server is closed")
	}
	s.listener = listener
	s.mu.Unlock()

	maxClients := s.config.MaxClients
	if maxClients <= 0 {
		maxClients = ants.DefaultAntsPoolSize
	}
	pool, err := ants.NewPool(maxClients, ants.WithNonblocking(true))
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %v", err)
	}
	s.pool = pool

	if s.config.MetricsEndpoint != "" {
		s.serveMetrics()
	}

	Logger.Infof("Listening on %s (max %d clients)", listener.Addr(), maxClients)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		})
		if submitErr != nil {
			// Pool is saturated, turn the client away instead of queueing
			s.wg.Done()
			s.rejectConnection(conn)
		}
	}
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting connections and waits for the active ones to
// drain. The engine and persistence manager are owned by the caller and
// stay open.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()

	if s.pool != nil {
		s.pool.Release()
	}
	if s.metrics != nil {
		if cerr := s.metrics.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	Logger.Infof("Server stopped")
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// rejectConnection tells a client over the limit why it is being
// dropped before closing the socket.
func (s *Server) rejectConnection(conn net.Conn) {
	Logger.Warningf("Rejecting connection from %s: max clients reached", conn.RemoteAddr())
	_, _ = conn.Write([]byte("-ERR max number of clients reached\r\n"))
	_ = conn.Close()
}

// --------------------------------------------------------------------------
// Metrics endpoint
// --------------------------------------------------------------------------

// serveMetrics exposes the monitor's Prometheus metrics over HTTP.
func (s *Server) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.mon.WritePrometheus(w)
	})

	s.metrics = &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		Logger.Infof("Serving metrics on http://%s/metrics", s.config.MetricsEndpoint)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics server error: %v", err)
		}
	}()
}

// --------------------------------------------------------------------------
// Signal handling
// --------------------------------------------------------------------------

// WaitForShutdown blocks until SIGINT or SIGTERM is received, then
// closes the server.
func (s *Server) WaitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	received := <-sig
	Logger.Infof("Received %s, shutting down", received)
	if err := s.Close(); err != nil {
		Logger.Errorf("Shutdown error: %v", err)
	}
}
