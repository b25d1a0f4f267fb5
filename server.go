// Copyright 2025 The micro-modbus Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Server is a Modbus TCP server. It owns the listener and the
// per-connection service loops; the data model is reached only through
// the configured callbacks.
type Server struct {
	callbacks Callbacks
	opts      *serverOptions

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   int32
	wg       sync.WaitGroup
	metrics  *ServerMetrics
}

// NewServer creates a new Modbus TCP server. The callback set is
// copied and must not be mutated afterwards.
func NewServer(callbacks Callbacks, opts ...ServerOption) *Server {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Server{
		callbacks: callbacks,
		opts:      options,
		conns:     make(map[net.Conn]struct{}),
		metrics:   NewServerMetrics(),
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *ServerMetrics {
	return s.metrics
}

// ListenAndServe starts the server on the given address. It does not
// return under normal operation.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// ListenAndServeContext starts the server and shuts it down when the
// context is cancelled.
func (s *Server) ListenAndServeContext(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s.Serve(listener)
}

// Serve accepts connections on the given listener and services each in
// its own goroutine until Close is called.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.opts.logger.Info("server started",
		slog.String("addr", listener.Addr().String()),
		slog.Int("max_conns", s.opts.maxConns),
		slog.Duration("idle_timeout", s.opts.idleTimeout))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			s.opts.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.opts.maxConns {
			s.mu.Unlock()
			s.metrics.RejectedConns.Add(1)
			s.opts.logger.Warn("max connections reached, rejecting",
				slog.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.metrics.ActiveConns.Add(1)
		s.metrics.TotalConns.Add(1)
		s.mu.Unlock()

		// Configure TCP options
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close shuts down the server, closing the listener and every active
// connection, and waits for the connection handlers to finish.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.opts.logger.Info("server stopped")
	return err
}

// Addr returns the server's address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ActiveConnections returns the number of active connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// handleConn services one client: receive a frame, process it, send
// exactly one response, repeat. The loop ends on peer disconnect, idle
// timeout, a framing error or a fatal transport error; all of these
// close the connection without a response, since the protocol has no
// transport-level error reply.
func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		// Recover from panic to prevent server crash
		if r := recover(); r != nil {
			s.opts.logger.Error("panic in connection handler",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}

		s.wg.Done()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.metrics.ActiveConns.Add(-1)
		s.mu.Unlock()
	}()

	s.opts.logger.Debug("connection accepted",
		slog.String("remote", conn.RemoteAddr().String()))

	for {
		if atomic.LoadInt32(&s.closed) == 1 {
			return
		}

		if s.opts.idleTimeout > 0 {
			conn.SetReadDeadline(timeNow().Add(s.opts.idleTimeout))
		}

		frame, err := ReadFrame(conn)
		if err != nil {
			s.logReadError(conn, err)
			return
		}

		s.metrics.RequestsTotal.Add(1)
		start := timeNow()
		response := s.processRequest(frame)
		s.metrics.Latency.Observe(timeNow().Sub(start))

		if s.opts.idleTimeout > 0 {
			conn.SetWriteDeadline(timeNow().Add(s.opts.idleTimeout))
		}

		if _, err := conn.Write(response); err != nil {
			s.metrics.RequestsErrors.Add(1)
			s.opts.logger.Debug("write error",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
			return
		}

		s.metrics.RequestsSuccess.Add(1)
	}
}

// logReadError records why a connection's receive side ended. Idle
// timeouts and orderly closes are normal termination paths and only
// counted, not logged as errors.
func (s *Server) logReadError(conn net.Conn, err error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		s.metrics.TimeoutConns.Add(1)
		s.opts.logger.Debug("connection idle timeout",
			slog.String("remote", conn.RemoteAddr().String()))
	case err == io.EOF:
		s.opts.logger.Debug("connection closed by peer",
			slog.String("remote", conn.RemoteAddr().String()))
	case errors.Is(err, ErrInvalidFrame):
		s.metrics.RequestsErrors.Add(1)
		s.opts.logger.Debug("framing error, closing connection",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	default:
		s.opts.logger.Debug("read error",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
}

// timeNow is a variable for testing
var timeNow = time.Now
