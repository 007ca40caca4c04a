package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardianos/service"
)

// Version is stamped at build time via -ldflags
var Version = "dev"

// daemonOptions carries command line overrides into the daemon
type daemonOptions struct {
	configPath string
	host       string
	port       string
	dbPath     string
	webOnly    bool
}

func main() {
	// Command line flags
	var (
		configPath  = flag.String("config", "", "Bootstrap config file path (TOML)")
		port        = flag.String("port", "", "Web interface port (overrides config)")
		host        = flag.String("host", "", "Web interface host (overrides config)")
		dbPath      = flag.String("db", "", "Database file path (overrides config)")
		webOnly     = flag.Bool("web-only", false, "Run only the web interface, without printer monitoring")
		serviceCmd  = flag.String("service", "", "Service control: install, uninstall, start, stop, restart, status, run")
		showVersion = flag.Bool("version", false, "Show version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("AfterPrint %s\n", Version)
		return
	}

	opts := daemonOptions{
		configPath: *configPath,
		host:       *host,
		port:       *port,
		dbPath:     *dbPath,
		webOnly:    *webOnly,
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd, opts)
		return
	}

	// Started by a service manager rather than a terminal
	if !service.Interactive() {
		runAsService(opts)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Shutting down...")
		cancel()
	}()

	if err := runDaemon(ctx, opts); err != nil {
		log.Fatalf("AfterPrint failed: %v", err)
	}
}

// runDaemon wires everything together and blocks until ctx is cancelled or
// the web server fails.
func runDaemon(ctx context.Context, opts daemonOptions) error {
	log.Printf("🖨️ AfterPrint %s starting", Version)

	bootstrap, err := LoadBootstrapConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.host != "" {
		bootstrap.Web.Host = opts.host
	}
	if opts.port != "" {
		bootstrap.Web.Port = opts.port
	}
	if opts.dbPath != "" {
		bootstrap.Database.Path = opts.dbPath
	}

	store, err := NewStore(getDBFilePath(bootstrap))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if err := seedConnectionSettings(store, bootstrap); err != nil {
		return err
	}

	settings, err := store.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	client := NewOctoPrintClient(settings.OctoPrintURL, settings.OctoPrintAPIKey)
	engine := NewReminderEngine(store, client)
	defer engine.Stop()

	webServer := NewWebServer(store, engine, bootstrap.Web.Host, bootstrap.Web.Port)
	engine.SetPopupBroadcaster(webServer)

	if opts.webOnly {
		fmt.Println("Starting web interface only...")
	} else {
		fmt.Printf("Watching OctoPrint at %s\n", settings.OctoPrintURL)
		fmt.Printf("Reminder interval: %ds, start delay: %ds\n", settings.IntervalSeconds, settings.StartDelaySeconds)

		client.CheckServerVersion()

		listener := NewPushListener(client, engine, log.Default())
		engine.SetListener(listener)
		listener.Start()
		defer listener.Stop()

		// Poll as a fallback while the push socket is down, and push a
		// status update to dashboards after each cycle
		go func() {
			ticker := time.NewTicker(time.Duration(settings.PollInterval) * time.Second)
			defer ticker.Stop()

			engine.PollPrinter()
			webServer.BroadcastStatus()

			for {
				select {
				case <-ticker.C:
					engine.PollPrinter()
					webServer.BroadcastStatus()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- webServer.Start()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("web server error: %w", err)
	}
}

// seedConnectionSettings copies the OctoPrint connection from the bootstrap
// file into the database when none is configured yet, so a config file is
// enough to get a fresh install talking to the printer.
func seedConnectionSettings(store *Store, bootstrap *BootstrapConfig) error {
	firstRun, err := store.IsFirstRun()
	if err != nil || !firstRun {
		return err
	}

	if bootstrap.OctoPrint.URL != "" {
		if err := store.SetConfigValue(ConfigKeyOctoPrintURL, bootstrap.OctoPrint.URL); err != nil {
			return fmt.Errorf("failed to seed OctoPrint URL: %w", err)
		}
	}
	if bootstrap.OctoPrint.APIKey != "" {
		if err := store.SetConfigValue(ConfigKeyOctoPrintAPIKey, bootstrap.OctoPrint.APIKey); err != nil {
			return fmt.Errorf("failed to seed OctoPrint API key: %w", err)
		}
		log.Printf("📥 Seeded OctoPrint connection from config file")
	}

	return nil
}
