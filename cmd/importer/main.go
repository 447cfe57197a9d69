package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-community/byron-importer/bridge"
	"github.com/blinklabs-community/byron-importer/config"
	"github.com/blinklabs-community/byron-importer/genesis"
	"github.com/blinklabs-community/byron-importer/scheduler"
	"github.com/blinklabs-community/byron-importer/store"
	"github.com/blinklabs-community/byron-importer/submit"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("importer: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bc, err := bridge.New(cfg.BridgeURL, cfg.Network.Name)
	if err != nil {
		return fmt.Errorf("build bridge client: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loadGenesisIfNeeded(ctx, st, bc, cfg.Network.Genesis); err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	sched := scheduler.New(st, bc, cfg.Scheduler, cfg.Network.StartTime)
	submitHandler := submit.New(st, bc, cfg.Network.NetworkMagic)

	mux := http.NewServeMux()
	submitHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[importer] received signal %v, shutting down", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("[importer] scheduler starting")
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("[importer] scheduler stopped: %v", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[importer] http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[importer] http server error: %v", err)
		}
	}()

	<-ctx.Done()
	server.Close()
	wg.Wait()
	log.Println("[importer] shutdown complete")
	return nil
}

// loadGenesisIfNeeded fetches the network's genesis document from the
// bridge and materializes its balances as height-0 UTXOs, unless the store
// already holds data from a previous run.
func loadGenesisIfNeeded(ctx context.Context, st *store.Store, bc *bridge.Client, genesisHash string) error {
	loaded, err := st.IsGenesisLoaded()
	if err != nil {
		return err
	}
	if loaded {
		return nil
	}
	doc, err := bc.Genesis(ctx, genesisHash)
	if err != nil {
		return fmt.Errorf("fetch genesis document: %w", err)
	}
	return genesis.Load(st, doc)
}
