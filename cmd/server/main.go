package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowsync/internal/config"
	"flowsync/internal/handler"
	"flowsync/internal/middleware"
	"flowsync/internal/repository"
	"flowsync/internal/service"
	"flowsync/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}

	workflowRepo := repository.NewWorkflowRepository(client, cfg.Database.Name)
	versionRepo := repository.NewVersionRepository(client, cfg.Database.Name)
	conflictRepo := repository.NewConflictRepository(client, cfg.Database.Name)

	heartbeatService := service.NewHeartbeatService(cfg.Heartbeat.Interval, cfg.Server.Version)

	wsManager := websocket.NewManager(
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		heartbeatService.ServerMode,
	)
	go wsManager.Run()

	syncService := service.NewSyncService(wsManager, heartbeatService)
	workflowService := service.NewWorkflowService(workflowRepo)
	ledgerService := service.NewLedgerService(versionRepo)
	resolverService := service.NewResolverService(conflictRepo)

	wsManager.SetMessageHandler(handler.NewChannelMessageHandler(heartbeatService, wsManager))

	coordinationHandler := handler.NewCoordinationHandler(heartbeatService, syncService, wsManager)
	workflowHandler := handler.NewWorkflowHandler(workflowService)
	versionHandler := handler.NewVersionHandler(ledgerService)
	conflictHandler := handler.NewConflictHandler(resolverService, workflowService)
	wsHandler := handler.NewWebSocketHandler(wsManager)

	// Periodic upkeep: sweep silent clients, push server status to the fleet.
	go func() {
		sweep := time.NewTicker(cfg.Heartbeat.SweepInterval)
		status := time.NewTicker(cfg.Heartbeat.StatusInterval)
		defer sweep.Stop()
		defer status.Stop()
		for {
			select {
			case <-sweep.C:
				heartbeatService.Sweep()
			case <-status.C:
				wsManager.BroadcastSystemStatus(heartbeatService.SystemStatus())
			}
		}
	}()

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/coordination/heartbeat", coordinationHandler.Heartbeat).Methods("POST", "OPTIONS")
	api.HandleFunc("/coordination/status", coordinationHandler.ReportStatus).Methods("POST", "OPTIONS")
	api.HandleFunc("/coordination/status/{clientId}", coordinationHandler.ClientStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/coordination/stats", coordinationHandler.Stats).Methods("GET", "OPTIONS")
	api.HandleFunc("/coordination/sync/trigger", coordinationHandler.TriggerSync).Methods("POST", "OPTIONS")

	api.HandleFunc("/workflows", workflowHandler.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/workflows", workflowHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/workflows/{id}", workflowHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/workflows/{id}", workflowHandler.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/workflows/{id}", workflowHandler.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/workflows/{id}/execute", workflowHandler.Execute).Methods("POST", "OPTIONS")
	api.HandleFunc("/workflows/{id}/conflicts/detect", conflictHandler.Detect).Methods("POST", "OPTIONS")

	api.HandleFunc("/workflows/{id}/versions", versionHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/workflows/{id}/versions", versionHandler.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/versions/compare", versionHandler.Compare).Methods("GET", "OPTIONS")
	api.HandleFunc("/versions/batch-delete", versionHandler.BatchDelete).Methods("POST", "OPTIONS")
	api.HandleFunc("/versions/{id}/rollback", versionHandler.Rollback).Methods("POST", "OPTIONS")
	api.HandleFunc("/versions/{id}/tags", versionHandler.Tag).Methods("POST", "OPTIONS")
	api.HandleFunc("/versions/{id}/export", versionHandler.Export).Methods("GET", "OPTIONS")
	api.HandleFunc("/versions/{id}", versionHandler.Delete).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/conflicts", conflictHandler.ListPending).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/{id}", conflictHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/{id}/resolve", conflictHandler.Resolve).Methods("POST", "OPTIONS")

	api.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting FlowSync Coordination Server on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"flowsync-server"}`))
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"FlowSync Coordination Server API","version":"1.0.0","endpoints":{"/api/v1/coordination/heartbeat":"POST","/api/v1/workflows":"GET","/api/v1/ws":"WebSocket"}}`))
}
