package http

import (
	"context"
	"errors"
	"net/http"
	"time"
)

/*
Server wraps the router in an http.Server so the process can stop
accepting connections and drain in-flight requests on shutdown. SSE
streams are long-lived, so no global write timeout is set; slow-client
protection is limited to the header read.
*/
type Server struct {
	srv *http.Server
}

func NewServer(cfg RouterConfig) *Server {
	return &Server{
		srv: &http.Server{
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Run(address string) error {
	s.srv.Addr = address
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
