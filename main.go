package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pathwatch/capture"
	"pathwatch/config"
	"pathwatch/report"
	"pathwatch/statistics"
	"pathwatch/store"
	"pathwatch/trace"
	"pathwatch/util"
)

var (
	configPath string
	interfaces string
	names      string
	target     string
	dbPath     string
	outPath    string
	cadence    time.Duration
	verbose    bool

	// Consecutive storage failures; past the threshold they are reported as
	// systemic rather than transient.
	storeFailures int32
)

const storeFailureThreshold = 5

func main() {
	flag.StringVar(&configPath, "config", "", "Path to monitor configuration, replaces the flag surface when set")
	flag.StringVar(&interfaces, "interfaces", "", "Comma separated network interfaces to trace over (e.g. eth0,eth1)")
	flag.StringVar(&names, "names", "", "Comma separated connection names, one per interface")
	flag.StringVar(&target, "target", "", "Target address for the route trace")
	flag.StringVar(&dbPath, "db", "", "Path to the observation database")
	flag.StringVar(&outPath, "out", "", "Path to the rendered HTML report")
	flag.DurationVar(&cadence, "cadence", time.Second, "Delay between capture cycles")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose output including full trace reports")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.TraceLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	cfg := loadConfig()

	st, err := store.Open(cfg.Database)
	if err != nil {
		logrus.Fatal("Unable to open observation store: ", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload := make(chan *config.Config, 1)
	if configPath != "" {
		go watchConfig(ctx, configPath, reload)
	}

	runner := capture.NewMTR(cfg.Capture)
	ticker := time.NewTicker(cfg.Cadence.Duration)
	defer ticker.Stop()

	logrus.Info("Starting traceroute monitoring")
	logrus.Infof("Target: %v, connections: %v", cfg.Target, cfg.Names())

	for {
		cycle(ctx, cfg, runner, st)

		select {
		case <-ctx.Done():
			logrus.Info("Received signal to stop, exiting safely")
			return
		case newCfg := <-reload:
			cfg = applyReload(cfg, newCfg)
			runner = capture.NewMTR(cfg.Capture)
			ticker.Reset(cfg.Cadence.Duration)
			logrus.Info("[ CONFIG_RELOAD ] target: ", cfg.Target, " connections: ", cfg.Names())
		case <-ticker.C:
		}
	}
}

// loadConfig resolves the configuration file when given, otherwise the bare
// flag surface. The -db and -out flags override either source.
func loadConfig() *config.Config {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromFlags(interfaces, names, target, cadence)
	}
	if err != nil {
		logrus.Fatal("Unable to load configuration: ", err)
	}

	if dbPath != "" {
		cfg.Database = dbPath
	}
	if outPath != "" {
		cfg.Report = outPath
	}

	return cfg
}

// applyReload carries settings that cannot change while running from the old
// configuration into the new one. The store handle is opened once at
// startup, so a database path change needs a restart and is refused loudly
// rather than ignored.
func applyReload(old, updated *config.Config) *config.Config {
	if updated.Database != old.Database {
		logrus.Warn("[ CONFIG_RELOAD ] database path changes require a restart, keeping ", old.Database)
		updated.Database = old.Database
	}
	return updated
}

// cycle runs one capture-parse-store pass per connection, concurrently and
// independently, then refreshes the report outputs. No failure in here stops
// the loop; a failed sample is simply absent from this tick's history.
func cycle(ctx context.Context, cfg *config.Config, runner capture.Runner, st *store.Store) {
	var g errgroup.Group
	for _, conn := range cfg.Connections {
		conn := conn
		g.Go(func() error {
			sample(ctx, cfg, conn, runner, st)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return
	}

	snap, err := statistics.Build(ctx, st, cfg, time.Now())
	if err != nil {
		logrus.Error("Unable to build statistics snapshot: ", err)
		return
	}
	if err := report.WriteHTML(cfg.Report, snap); err != nil {
		logrus.Error("Unable to write report: ", err)
	}
	if err := report.WriteJSON(cfg.Snapshot, snap); err != nil {
		logrus.Error("Unable to write snapshot: ", err)
	}
}

// sample performs one capture-parse-store sequence for one connection.
func sample(ctx context.Context, cfg *config.Config, conn config.Connection, runner capture.Runner, st *store.Store) {
	if err := util.IfaceReady(conn.Interface); err != nil {
		logrus.Warn("[ CAPTURE_FAIL ] connection: ", conn.Name, " interface: ", conn.Interface, " ", err)
		return
	}

	raw, err := runner.Capture(ctx, cfg.Target, conn.Interface)
	if err != nil {
		logrus.Error("[ CAPTURE_FAIL ] connection: ", conn.Name, " ", err)
		return
	}

	summary, ok := trace.Parse(raw, conn.Name)
	if !ok {
		// Parse produced no usable hop data, already logged; nothing is stored
		return
	}

	if err := st.Insert(ctx, conn.Name, cfg.Target, summary.Loss, time.Now().Unix()); err != nil {
		failures := atomic.AddInt32(&storeFailures, 1)
		if failures >= storeFailureThreshold {
			logrus.Error("[ STORE_DEGRADED ] ", failures, " consecutive storage failures, last: ", err)
		} else {
			logrus.Error("Unable to store observation for ", conn.Name, ": ", err)
		}
		return
	}
	atomic.StoreInt32(&storeFailures, 0)

	logrus.Infof("Sampled %v over %v: %.2f%% loss across %d hops", conn.Name, conn.Interface, summary.Loss, summary.Hops)
}

// watchConfig reloads the configuration file when it changes on disk.
// Editors and provisioning tools replace files rather than writing in place,
// so the watch covers the parent directory.
func watchConfig(ctx context.Context, path string, reload chan<- *config.Config) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Error("Unable to watch configuration: ", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logrus.Error("Unable to watch configuration: ", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				logrus.Error("Ignoring invalid configuration update: ", err)
				continue
			}
			select {
			case reload <- cfg:
			default: // A pending reload already carries the latest file
			}
		case err := <-watcher.Errors:
			logrus.Error("Configuration watcher: ", err)
		}
	}
}
