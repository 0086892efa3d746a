package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/bot"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/commands"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/config"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/database"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/detector"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/dispatcher"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/engine"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/incident"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/metrics"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/notifier"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/quarantine"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/ratewindow"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/restore"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/snapshot"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/sys"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/watchdog"
)

func main() {
	cfg := config.LoadOrDefault("config.json")

	if err := logging.InitGlobalLogger(logging.ParseLevel(cfg.Runtime.LogLevel), cfg.Runtime.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "logging init failed: %v\n", err)
		os.Exit(1)
	}
	logging.Info("starting server protection engine")

	if cfg.Bot.Token == "" {
		logging.Critical("no bot token configured, set DISCORD_TOKEN or config.json bot.token")
		os.Exit(1)
	}

	if cfg.Runtime.DetectorCPU >= 0 {
		if err := sys.PinToCore(cfg.Runtime.DetectorCPU); err != nil {
			logging.Warn("cpu pin to core %d failed: %v", cfg.Runtime.DetectorCPU, err)
		}
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logging.Critical("database open failed: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	reg := guildstate.NewRegistry(cfg.Detection.QueueSize)
	if _, err := db.SyncRegistry(reg); err != nil {
		logging.Critical("registry sync failed: %v", err)
		os.Exit(1)
	}

	session, err := bot.New(cfg.Bot.Token)
	if err != nil {
		logging.Critical("session create failed: %v", err)
		os.Exit(1)
	}
	api := bot.NewAPI(session)

	mreg := metrics.NewRegistry()

	tracker := ratewindow.NewTracker()
	det := detector.New(reg, tracker)
	det.SetHooks(mreg.EventProcessed, mreg.SignalRaised, mreg.EventDropped)

	snapshots := snapshot.NewStore(api)
	qc := quarantine.NewController(api, reg)
	restorer := restore.NewEngine(api, snapshots, reg)
	restorer.SetRetryPolicy(
		cfg.Restore.MaxRetries,
		time.Duration(cfg.Restore.BackoffMs)*time.Millisecond,
		time.Duration(cfg.Restore.ItemTimeoutMs)*time.Millisecond,
	)
	recorder := incident.NewRecorder(db)

	eng := engine.New(reg, det, qc, restorer, snapshots, recorder, db)
	eng.SetIncidentHook(mreg.IncidentRecorded)
	eng.SetRestoreLatencyHook(mreg.RecordRestoreLatency)

	wd := watchdog.New(5 * time.Second)
	wd.Register("engine", 60*time.Second)
	wd.Register("notifier", 60*time.Second)
	eng.SetHeartbeat(func() { wd.Heartbeat("engine") })

	pool := dispatcher.NewPool(cfg.Network.HTTPPoolSize)
	pool.Warmup(cfg.Network.APIBaseURL)
	limits := dispatcher.NewRateLimitMonitor()
	eng.SetBlocker(dispatcher.NewExecutor(pool, limits, cfg.Bot.Token, cfg.Network.APIBaseURL))

	hub := notifier.NewHub()
	hub.SetHeartbeat(func() { wd.Heartbeat("notifier") })
	hub.Run()
	eng.SetPublisher(notifier.Fanout{hub, notifier.NewDiscordSink(session.Discord(), reg)})

	events := bot.NewEvents(session, det, reg, db,
		time.Duration(cfg.Detection.AuditCacheTTLMs)*time.Millisecond)
	events.Attach()

	if err := session.Open(); err != nil {
		logging.Critical("gateway connect failed: %v", err)
		os.Exit(1)
	}
	defer session.Close()
	det.SetBotID(session.BotID())

	// Enabled guilds persisted from a previous run need their workers up
	// before events start flowing.
	for _, st := range reg.All() {
		if st.Enabled() {
			st.StartWorker(det.Handle)
		}
	}

	eng.Start()

	if _, err := commands.Setup(session, eng); err != nil {
		logging.Error("command registration failed: %v", err)
	}

	wd.Start()

	httpSrv := startHTTP(cfg.Network.ListenAddr, mreg, hub, wd)

	logging.Info("engine ready, %d guild(s) under protection", reg.Size())
	waitForShutdown()

	logging.Info("shutting down")
	httpSrv.Close()
	wd.Stop()
	eng.Stop()
	hub.Stop()
	for _, st := range reg.All() {
		st.StopWorker()
	}
	logging.Info("shutdown complete")
}

func startHTTP(addr string, mreg *metrics.Registry, hub *notifier.Hub, wd *watchdog.Watchdog) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mreg.Handler())
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		for name, ok := range wd.Status() {
			fmt.Fprintf(w, "%s %v\n", name, ok)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("http server: %v", err)
		}
	}()
	logging.Info("http listening on %s", addr)
	return srv
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
