// Package handler is the serverless entrypoint. Every invocation shares one
// lazily built storefront.
//
// Carts, preferences and admin sessions go through the configured store, but
// checkout state lives in the instance that served the request. Card
// payments need sticky routing to one instance; cash checkout works on any.
package handler

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	"krayotmarket/internal/app"
	"krayotmarket/internal/config"
)

var (
	once    sync.Once
	served  http.Handler
	initErr error
)

func setup() {
	gin.SetMode(gin.ReleaseMode)
	cfg, err := config.Load(os.Getenv("KRAYOT_CONFIG"))
	if err != nil {
		initErr = err
		return
	}
	// Serverless instances have no shared disk; a redis URL switches to redis.
	if cfg.Storage.Driver == "file" {
		cfg.Storage.Driver = "memory"
		if cfg.Storage.RedisURL != "" {
			cfg.Storage.Driver = "redis"
		}
	}
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		initErr = err
		return
	}
	served = a.Handler()
}

func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		log.Printf("Handler - Storefront unavailable: %v", initErr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	served.ServeHTTP(w, r)
}
