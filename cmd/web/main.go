package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"krayotmarket/internal/app"
	"krayotmarket/internal/config"
	"krayotmarket/internal/tlsutil"
)

func main() {
	configPath := flag.String("config", os.Getenv("KRAYOT_CONFIG"), "optional YAML config file")
	flag.Parse()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration could not be loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Storefront could not be started: %v", err)
	}
	defer a.Close(context.Background())

	servers := buildServers(cfg, a.Handler())
	errc := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *server) { errc <- s.run() }(s)
	}

	select {
	case err := <-errc:
		log.Printf("Server stopped: %v", err)
	case <-ctx.Done():
		log.Println("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error on %s: %v", s.Addr, err)
		}
	}
}

type server struct {
	*http.Server
	tls bool
}

func (s *server) run() error {
	var err error
	if s.tls {
		err = s.ListenAndServeTLS("", "")
	} else {
		err = s.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// buildServers serves plain HTTP when hosted (PORT set or local HTTPS off).
// Local HTTPS runs TLS on the HTTPS port and redirects the HTTP port to it.
func buildServers(cfg *config.Config, handler http.Handler) []*server {
	httpPort := cfg.Server.Port
	if os.Getenv("PORT") != "" || !cfg.Server.LocalHTTPS {
		log.Printf("HTTP server starting on port %s", httpPort)
		return []*server{{Server: &http.Server{Addr: ":" + httpPort, Handler: handler}}}
	}

	cert, err := tlsutil.Load("localhost.crt", "localhost.key")
	if err != nil {
		log.Printf("Self-signed certificate could not be created: %v", err)
		log.Printf("HTTP server starting on port %s", httpPort)
		return []*server{{Server: &http.Server{Addr: ":" + httpPort, Handler: handler}}}
	}

	httpsPort := cfg.Server.HTTPSPort
	httpsServer := &http.Server{
		Addr:      ":" + httpsPort,
		Handler:   handler,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}
	redirect := &http.Server{
		Addr: ":" + httpPort,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			target := fmt.Sprintf("https://%s:%s%s", host, httpsPort, r.URL.Path)
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		}),
	}

	log.Printf("HTTPS server starting: https://localhost:%s", httpsPort)
	log.Printf("HTTP server redirecting port %s to HTTPS", httpPort)
	return []*server{{Server: httpsServer, tls: true}, {Server: redirect}}
}
