// Command sentineld runs the multi-tenant monitoring service: it loads
// every tenant's sensors and keeps one worker per sensor probing its
// device, persisting samples, fanning them out to WebSocket subscribers,
// and evaluating alert rules — until told to stop.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m360/sentinel/internal/alert"
	"github.com/m360/sentinel/internal/config"
	"github.com/m360/sentinel/internal/fanout"
	"github.com/m360/sentinel/internal/notify"
	"github.com/m360/sentinel/internal/routeros"
	"github.com/m360/sentinel/internal/scheduler"
	"github.com/m360/sentinel/internal/store"
	"github.com/m360/sentinel/internal/vpnmgr"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("sentineld starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("creating directories: %v", err)
	}

	db, err := store.Open(cfg.GetStorage().SQLitePath)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer db.Close()

	vpn := vpnmgr.New(func(ctx context.Context, profileID string) (string, error) {
		return db.GetVpnProfileConfigText(profileID)
	}, cfg.GetStorage().TempDir)

	pool := routeros.NewPool(cfg.GetScheduler().RouterOSTimeout)
	defer pool.CloseAll()

	notifier := notify.New(db)
	alertEval := alert.New(db, notifier, cfg.GetScheduler().DefaultAlertCooldownMinutes)
	fanoutReg := fanout.New(db, db)
	sched := scheduler.New(db, pool, vpn, fanoutReg, alertEval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.StartAll(ctx); err != nil {
		log.Fatalf("starting sensors: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(fanoutReg, cfg))

	addr := cfg.GetListen().Address
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")

		sched.StopAll()

		teardownCtx, teardownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer teardownCancel()
		vpn.TeardownAll(teardownCtx)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("http server error: %v", err)
	}
	log.Println("sentineld stopped.")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler is the WebSocket boundary for the subscriber protocol
// (fanout.Serve). It trusts a "tenant" query parameter as an explicit
// stand-in for the excluded JWT layer — real deployments put a verifying
// proxy in front of this endpoint.
func wsHandler(f *fanout.Fanout, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if cfg.GetBearerSecret() != "" && token != cfg.GetBearerSecret() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			http.Error(w, "missing tenant", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade: %v", err)
			return
		}

		f.Serve(r.Context(), conn, tenant)
	}
}
