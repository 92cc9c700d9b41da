package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"flowsync/internal/backend"
	"flowsync/internal/config"
	"flowsync/internal/coordination"
	"flowsync/internal/domain"
	"flowsync/internal/repository"
	"flowsync/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	schema := append(store.DefaultSchema(), repository.LedgerSchema()...)
	st := store.New(cfg.Agent.StorePath, 1, schema)
	defer st.Close()

	channel := coordination.NewChannel(st, coordination.Options{
		ServerURL:         cfg.Agent.ServerURL,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		ReconnectDelay:    cfg.Agent.ReconnectDelay,
	})

	mode := coordination.LoadMode(st, domain.Mode(cfg.Agent.Mode))
	if err := channel.Initialize(mode); err != nil {
		log.Fatalf("Failed to initialize coordination channel: %v", err)
	}

	identity := channel.Identity()
	log.Printf("Agent started: client=%s session=%s mode=%s server=%s",
		identity.ClientID, identity.SessionID, channel.Mode(), cfg.Agent.ServerURL)

	local := backend.NewLocalBackend(st)
	remote := backend.NewRemoteBackend(cfg.Agent.ServerURL, nil)
	replayer := backend.NewReplayer(local, remote, cfg.Agent.ReplayInterval, cfg.Agent.MaxReplayRetries)

	// Drain the offline mutation queue whenever the server asks for a sync
	// or the agent comes back online.
	go func() {
		events := channel.Events()
		for {
			select {
			case ack := <-events.Heartbeat:
				log.Printf("[AGENT] heartbeat acknowledged, server mode %s (consistent=%t)", ack.ServerMode, ack.ModeConsistent)
			case change := <-events.ModeChanged:
				log.Printf("[AGENT] mode changed %s -> %s (%s)", change.OldMode, change.NewMode, change.Reason)
				if change.NewMode == domain.ModeOnline {
					replayQueue(replayer)
				}
			case mismatch := <-events.ModeMismatch:
				log.Printf("[AGENT] server suggests mode %s (currently %s)", mismatch.SuggestedMode, mismatch.CurrentMode)
			case sync := <-events.SyncRequired:
				log.Printf("[AGENT] sync requested: %s", sync.SyncType)
				if channel.Mode() != domain.ModeOffline {
					replayQueue(replayer)
				}
			case note := <-events.Notification:
				log.Printf("[AGENT] notification [%s] %s: %s", note.Level, note.Title, note.Content)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	channel.Cleanup()
	log.Println("Agent stopped")
}

func replayQueue(replayer *backend.Replayer) {
	replayed, err := replayer.Replay()
	if err != nil {
		log.Printf("[AGENT] replay failed: %v", err)
		return
	}
	if replayed > 0 {
		log.Printf("[AGENT] replayed %d queued mutation(s)", replayed)
	}
}
