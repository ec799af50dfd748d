package bmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// FrameSink receives every raw BMP frame, header included. Used for the
// optional capture writer.
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// Server is the BMP TCP collector: one accept loop, one worker goroutine
// per connection. Connections share nothing but the route store behind
// the handler and the optional frame sink.
type Server struct {
	addr    string
	handler *Handler
	sink    FrameSink
	logger  *zap.Logger

	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(host string, port int, handler *Handler, sink FrameSink, logger *zap.Logger) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		handler: handler,
		sink:    sink,
		logger:  logger,
	}
}

// Listen binds the TCP socket. Failure to bind is fatal to the caller.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding bmp listener %s: %w", s.addr, err)
	}
	s.ln = ln
	s.logger.Info("BMP server listening", zap.String("addr", s.addr))
	return nil
}

// Run accepts connections until the context is cancelled, then waits
// for the per-connection workers to drain.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("BMP accept error", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	s.logger.Info("BMP server stopped")
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Info("BMP connection established", zap.String("remote", remote))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	defer conn.Close()

	for {
		msgType, frame, err := ReadFrame(conn)
		if err != nil {
			switch {
			case err == io.EOF:
				s.logger.Info("BMP client disconnected", zap.String("remote", remote))
			case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
				// Shutdown.
			default:
				s.logger.Warn("BMP session error",
					zap.String("remote", remote),
					zap.Error(err),
				)
			}
			return
		}

		if s.sink != nil {
			if err := s.sink.WriteFrame(frame); err != nil {
				s.logger.Warn("BMP capture write failed", zap.Error(err))
			}
		}

		s.handler.Handle(msgType, frame, remote)
	}
}
