package sync

import (
	"bufio"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Server accepts TCP feed subscribers. Anything a subscriber sends is
// read and discarded.
type Server struct {
	Addr string
	Hub  *Hub

	mu  sync.Mutex
	ln  net.Listener
	log zerolog.Logger
}

func NewServer(addr string, hub *Hub, log zerolog.Logger) *Server {
	return &Server{Addr: addr, Hub: hub, log: log.With().Str("component", "feed-tcp").Logger()}
}

// Run serves until Close is called, then returns nil.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("feed listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept")
			continue
		}

		_, _ = conn.Write(s.Hub.welcome("tcp"))
		s.Hub.AddTCP(conn)
		s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("subscriber connected")

		go func(c net.Conn) {
			defer func() {
				s.Hub.RemoveTCP(c)
				s.log.Debug().Str("remote", c.RemoteAddr().String()).Msg("subscriber disconnected")
			}()
			sc := bufio.NewScanner(c)
			for sc.Scan() {
			}
		}(conn)
	}
}

// ListenAddr returns the bound address once Run is listening.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
