// Package httpserver builds the service's HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. ReadHeaderTimeout guards the accept loop
// against slow-header clients; the read and write ceilings come from config
// so deployments with large document submissions can stretch them.
func New(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
