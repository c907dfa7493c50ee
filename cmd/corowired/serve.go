package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corowire/corort"
	"github.com/corowire/corort/coroconfig"
	"github.com/corowire/corort/corolog"
	"github.com/corowire/corort/corometrics"
	"github.com/corowire/corort/hook"
	"github.com/corowire/corort/httpserver"
	"github.com/corowire/corort/tcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a fleet of coroutine-scheduler workers with a TCP echo and HTTP demo service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults used for any field it omits)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := coroconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := corolog.New(os.Stderr, cfg.LogLevel)
	metrics := corometrics.New("corowired")

	hook.SetEnabled(cfg.HookEnabled)
	hook.SetLogger(logger)
	hook.Configure(cfg.WheelSlots, cfg.WheelGranularityMS)

	startMetricsServer(metricsAddr(cfg.ListenAddr), metrics, logger)

	var wg sync.WaitGroup
	stopCh := make(chan struct{})

	for worker := 0; worker < cfg.Workers; worker++ {
		worker := worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(worker, cfg, logger, metrics, stopCh)
		}()
	}

	fmt.Printf("corowired: %d worker(s) started, listen-addr=%s\n", cfg.Workers, cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("corowired: shutting down...")
	close(stopCh)
	wg.Wait()
	return nil
}

// runWorker pins itself to its own OS thread (every corort table is
// thread-local, keyed by kernel TID) and drives one scheduler/reactor
// pair for the lifetime of the process. Worker 0 additionally owns the
// demo TCP echo listener and HTTP server.
func runWorker(id int, cfg *coroconfig.Config, logger *corolog.Logger, metrics *corometrics.Registry, stopCh <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sched := corort.CurrentScheduler()
	sched.SetLogger(logger)

	reactor, err := corort.CurrentReactor(cfg.WheelSlots, cfg.WheelGranularityMS)
	if err != nil {
		logger.Err("corowired", err, "worker", id, "op", "reactor init")
		return
	}
	reactor.SetLogger(logger)
	reactor.SetMetrics(metrics, metrics)

	workerLabel := fmt.Sprintf("worker-%d", id)
	metrics.SchedulerDepth(workerLabel, sched.Depth())

	if id == 0 {
		startDemoServices(sched, reactor, cfg, logger)
	}

	// Stop() only flips a mutex-guarded flag, so it's safe to call from
	// this watcher goroutine while EventLoop runs on the pinned thread.
	go func() {
		<-stopCh
		reactor.Stop()
	}()

	if err := reactor.EventLoop(); err != nil {
		logger.Err("corowired", err, "worker", id, "op", "event loop")
	}
}

// startDemoServices binds and starts the TCP echo listener, the HTTP
// demo server, and the long-poll connection-event endpoint on the
// calling (worker 0) thread, before its reactor loop begins running.
func startDemoServices(sched *corort.Scheduler, reactor *corort.Reactor, cfg *coroconfig.Config, logger *corolog.Logger) {
	events := make(chan connEvent, 64)
	publish := func(service, connID string) {
		select {
		case events <- connEvent{Service: service, ConnID: connID}:
		default: // long-poll endpoint isn't keeping up; drop rather than block accept
		}
	}

	echo := tcp.New("echo", func(clientFD int) {
		connID := uuid.New().String()
		logger.Debug("echo", "connection accepted", "conn_id", connID, "fd", clientFD)
		publish("echo", connID)
		defer func() {
			if err := hook.Close(clientFD); err != nil {
				logger.Err("echo", err, "conn_id", connID, "op", "close")
			}
		}()

		buf := make([]byte, 4096)
		for {
			n, err := hook.Read(clientFD, buf)
			if err != nil || n == 0 {
				return
			}
			if _, err := hook.Write(clientFD, buf[:n]); err != nil {
				logger.Err("echo", err, "conn_id", connID, "op", "write")
				return
			}
		}
	})
	echo.Configure(cfg.WheelSlots, cfg.WheelGranularityMS)
	echo.SetLogger(logger)

	echoAddr := echoListenAddr(cfg.ListenAddr)
	if err := echo.Bind(echoAddr); err != nil {
		logger.Err("corowired", err, "op", "echo bind", "addr", echoAddr)
	} else {
		echo.Start()
		logger.Debug("corowired", "echo listener started", "addr", echoAddr)
	}

	httpSrv := httpserver.New("demo")
	httpSrv.Configure(cfg.WheelSlots, cfg.WheelGranularityMS)
	httpSrv.SetLogger(logger)
	httpSrv.SetNotFound(func(req httpserver.Request) httpserver.Response {
		return httpserver.Response{
			Status:  404,
			Headers: map[string]string{"Content-Type": "text/plain"},
			Body:    []byte("not found\n"),
		}
	})
	httpSrv.Handle("GET", "/", func(req httpserver.Request) httpserver.Response {
		connID := uuid.New().String()
		logger.Debug("http", "request handled", "conn_id", connID, "method", req.Method, "path", req.Path)
		publish("http", connID)
		body := fmt.Sprintf("%s %s\n", req.Method, req.Path)
		return httpserver.Response{
			Status:  200,
			Headers: map[string]string{"Content-Type": "text/plain"},
			Body:    []byte(body),
		}
	})

	if err := httpSrv.Bind(cfg.ListenAddr); err != nil {
		logger.Err("corowired", err, "op", "http bind", "addr", cfg.ListenAddr)
		return
	}
	httpSrv.Start()
	logger.Debug("corowired", "http server started", "addr", cfg.ListenAddr)

	lp := newLongPollServer(longPollAddr(cfg.ListenAddr), events, logger)
	lp.start()
}

// echoListenAddr derives the echo listener's address from the configured
// HTTP address by shifting the port down by one, so both demo services
// can run side by side without a second config field.
func echoListenAddr(httpAddr string) string {
	host, port := splitHostPort(httpAddr)
	return fmt.Sprintf("%s:%d", host, port-1)
}

// longPollAddr derives the long-poll endpoint's address by shifting the
// configured HTTP port up by one.
func longPollAddr(httpAddr string) string {
	host, port := splitHostPort(httpAddr)
	return fmt.Sprintf("%s:%d", host, port+1)
}

// metricsAddr derives the Prometheus exposition address by shifting the
// configured HTTP port up by two.
func metricsAddr(httpAddr string) string {
	host, port := splitHostPort(httpAddr)
	return fmt.Sprintf("%s:%d", host, port+2)
}

// startMetricsServer exposes metrics' Prometheus registry at GET /metrics
// on a plain net/http.Server, decoupled from the coroutine scheduler the
// same way the long-poll endpoint is (see longpoll.go).
func startMetricsServer(addr string, metrics *corometrics.Registry, logger *corolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Err("corowired", err, "op", "listen", "addr", addr)
		}
	}()
	logger.Debug("corowired", "metrics endpoint started", "addr", addr)
}

func splitHostPort(addr string) (string, int) {
	idx := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return addr, 8080
	}
	host := addr[:idx]
	port := 0
	for _, c := range addr[idx+1:] {
		if c < '0' || c > '9' {
			return host, 8080
		}
		port = port*10 + int(c-'0')
	}
	return host, port
}
