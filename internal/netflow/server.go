package netflow

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Handler receives every parsed flow record from the UDP reader.
type Handler func(*FlowRecord)

// Server is the NetFlow UDP collector: a single reader goroutine that
// parses each datagram and hands the records to the handler in arrival
// order.
type Server struct {
	addr    string
	parser  *Parser
	handler Handler
	logger  *zap.Logger

	conn *net.UDPConn
}

func NewServer(host string, port int, parser *Parser, handler Handler, logger *zap.Logger) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		parser:  parser,
		handler: handler,
		logger:  logger,
	}
}

// Listen binds the UDP socket. Failure to bind is fatal to the caller.
func (s *Server) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolving netflow listen address %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("binding netflow socket %s: %w", s.addr, err)
	}
	s.conn = conn
	s.logger.Info("NetFlow collector listening", zap.String("addr", s.addr))
	return nil
}

// Run reads datagrams until the context is cancelled. The read unblocks
// on shutdown because the socket is closed from a watcher goroutine.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("NetFlow collector stopped")
				return
			}
			s.logger.Warn("NetFlow read error", zap.Error(err))
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		for _, flow := range s.parser.Parse(payload, addr.IP.String()) {
			s.handler(flow)
		}
	}
}
