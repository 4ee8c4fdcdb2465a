// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server exposes /metrics on its own listener, separate from the API
// port so the scrape endpoint is never reachable through the public
// surface.
type Server struct {
	manager        *Manager
	httpServer     *http.Server
	host           string
	port           int
	basicAuthUsers map[string]string
}

// NewServer builds the metrics listener. basicAuthUsers is the raw
// "user:password,user2:password2" config string; empty disables auth.
func NewServer(manager *Manager, host string, port int, basicAuthUsers string) *Server {
	return &Server{
		manager:        manager,
		host:           host,
		port:           port,
		basicAuthUsers: parseBasicAuthUsers(basicAuthUsers),
	}
}

func parseBasicAuthUsers(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Warn().Str("entry", pair).Msg("Ignoring malformed metrics basic auth entry")
			continue
		}
		users[parts[0]] = parts[1]
	}
	if len(users) == 0 {
		return nil
	}
	return users
}

// Start runs the listener until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()

	handler := promhttp.HandlerFor(s.manager.Registry(), promhttp.HandlerOpts{})
	if s.basicAuthUsers != nil {
		handler = s.basicAuth(handler)
	}
	r.Handle("/metrics", handler)

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) basicAuth(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		expected, found := s.basicAuthUsers[user]
		if !found || subtle.ConstantTimeCompare([]byte(expected), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}
