package main

import (
	"log"

	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/config"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/server"
)

func main() {
	cfg := config.Load()
	r, err := server.NewRouter(cfg)
	if err != nil {
		log.Fatalf("router setup: %v", err)
	}

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
