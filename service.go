package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface
type program struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
	opts      daemonOptions
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("AfterPrint service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	if err := runDaemon(p.ctx, p.opts); err != nil && p.svcLogger != nil {
		p.svcLogger.Errorf("AfterPrint service exited with error: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}

	// Wait for run() to finish with timeout
	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
		if p.svcLogger != nil {
			p.svcLogger.Warning("AfterPrint service stopped with timeout")
		}
	}

	return nil
}

// getServiceConfig returns the service configuration for the current platform
func getServiceConfig() *service.Config {
	return &service.Config{
		Name:             "AfterPrint",
		DisplayName:      "AfterPrint",
		Description:      "OctoPrint companion that reminds you to clear the print bed after a print finishes.",
		WorkingDirectory: serviceWorkingDir(),
		Arguments:        []string{"-service", "run"},
		Option: service.KeyValue{
			// Windows service options
			"StartType":              "automatic",
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",

			// Linux systemd options
			"Restart":    "on-failure",
			"RestartSec": 5,

			// macOS launchd options
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

// serviceWorkingDir returns the service data directory for the current platform
func serviceWorkingDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "AfterPrint")
	case "darwin":
		return "/Library/Application Support/AfterPrint"
	default:
		return "/var/lib/afterprint"
	}
}

// handleServiceCommand processes service install/uninstall/start/stop commands
func handleServiceCommand(cmd string, opts daemonOptions) {
	svcConfig := getServiceConfig()
	prg := &program{opts: opts}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := os.MkdirAll(svcConfig.WorkingDirectory, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create service directory: %v\n", err)
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service installed. Use '-service start' to start it.")

	case "uninstall":
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service uninstalled.")

	case "start":
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service started.")

	case "stop":
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service stopped.")

	case "restart":
		if err := s.Restart(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to restart service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service restarted.")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query service status: %v\n", err)
			os.Exit(1)
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service is running.")
		case service.StatusStopped:
			fmt.Println("Service is stopped.")
		default:
			fmt.Println("Service status is unknown.")
		}

	case "run":
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Service run failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown service command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Valid commands: install, uninstall, start, stop, restart, status, run")
		os.Exit(1)
	}
}

// runAsService starts the daemon under service manager control
func runAsService(opts daemonOptions) {
	svcConfig := getServiceConfig()
	prg := &program{opts: opts}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		os.Exit(1)
	}

	if err := s.Run(); err != nil {
		os.Exit(1)
	}
}
