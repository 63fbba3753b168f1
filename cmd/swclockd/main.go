// Command swclockd runs the disciplined software clock as a standalone
// daemon: it opens the clock core, attaches the binary event log, the
// real-time TE monitor, and the JSON-LD structured log, serves Prometheus
// metrics over HTTP, and disciplines the clock against stdin-fed offset
// samples until interrupted.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siwanetwork/swclock/internal/config"
	"github.com/siwanetwork/swclock/internal/eventlog"
	"github.com/siwanetwork/swclock/internal/logger"
	"github.com/siwanetwork/swclock/internal/monitor"
	"github.com/siwanetwork/swclock/internal/structuredlog"
	"github.com/siwanetwork/swclock/internal/swclock"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to YAML configuration file (uses built-in defaults if empty)")
		structuredPath = flag.String("structured-log", "", "path for the JSON-LD structured diagnostic log (disabled if empty)")
		listenAddr    = flag.String("listen", ":9110", "address to serve /metrics on")
		quiet         = flag.Bool("quiet", false, "suppress Info log lines (errors are always logged)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "swclockd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Logging.Quiet = cfg.Logging.Quiet || *quiet

	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.Quiet = cfg.Logging.Quiet

	events, err := eventlog.OpenFile(cfg.Events.Path, eventlog.WithRingBufferSize(cfg.Events.RingBufferBytes))
	if err != nil {
		logger.Error("open event log: %v", err)
		os.Exit(1)
	}

	mon := monitor.New(cfg.Monitor.SampleRateHz)
	mon.Start()

	collector := monitor.NewCollector(mon)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	var structured *structuredlog.Sink
	if *structuredPath != "" {
		structured, err = structuredlog.Open(*structuredPath, structuredlog.Rotation{
			Enabled:   true,
			MaxSizeMB: 100,
			MaxAge:    24 * time.Hour,
			Compress:  true,
		})
		if err != nil {
			logger.Error("open structured log: %v", err)
			os.Exit(1)
		}
	}

	opts := []swclock.Option{
		swclock.WithPIGains(cfg.Servo.Kp, cfg.Servo.Ki),
		swclock.WithPollPeriod(cfg.Servo.PollPeriod),
		swclock.WithEventSink(events),
		swclock.WithMonitorSink(mon),
	}
	if structured != nil {
		opts = append(opts, swclock.WithStructuredSink(structured))
	}

	clock, err := swclock.New(opts...)
	if err != nil {
		logger.Error("create clock: %v", err)
		os.Exit(1)
	}
	// Teardown runs in the order §3's Lifecycles clause requires: poll
	// worker first (inside clock.Close), then the event logger drained and
	// closed, then the monitor, then the structured logger.
	defer func() {
		clock.Close()
		events.Close()
		mon.Stop()
		if structured != nil {
			structured.Close()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server: %v", err)
		}
	}()

	logger.Info("swclockd started, poll_period=%s listen=%s", cfg.Servo.PollPeriod, *listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	offsetCh := make(chan int64, 16)
	go readOffsetSamples(offsetCh)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received signal %v, shutting down", sig)
			srv.Close()
			return
		case offsetNs, ok := <-offsetCh:
			if !ok {
				offsetCh = nil
				continue
			}
			req := swclock.AdjustRequest{
				Modes:  swclock.FlagOffset | swclock.FlagNano,
				Offset: offsetNs,
			}
			if _, err := clock.Adjust(req); err != nil {
				logger.Error("adjust: %v", err)
			}
		}
	}
}

// readOffsetSamples reads one signed nanosecond offset per line from
// stdin and forwards it to the main loop, closing ch on EOF.
func readOffsetSamples(ch chan<- int64) {
	defer close(ch)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ns, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		ch <- ns
	}
}
