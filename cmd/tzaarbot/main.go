// Package main runs the unattended Tzaar bot against the boiteajeux platform.
// It polls for turns and invitations, asks the external engine for moves and
// submits them, alerting the operator by mail when something needs attention.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/entrhq/tzaarbot/pkg/alert"
	"github.com/entrhq/tzaarbot/pkg/config"
	"github.com/entrhq/tzaarbot/pkg/engine"
	"github.com/entrhq/tzaarbot/pkg/escalation"
	"github.com/entrhq/tzaarbot/pkg/history"
	"github.com/entrhq/tzaarbot/pkg/logging"
	"github.com/entrhq/tzaarbot/pkg/platform"
	"github.com/entrhq/tzaarbot/pkg/protocol"
	"github.com/entrhq/tzaarbot/pkg/session"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Once        bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("tzaarbot v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("tzaarbot failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&cli.Once, "once", false, "Run a single polling iteration and exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tzaarbot - unattended Tzaar player for boiteajeux.net\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tzaarbot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCredentials may be given as TZAARBOT_USERNAME and TZAARBOT_PASSWORD.\n")
	}

	flag.Parse()
	return cli
}

//nolint:gocyclo
func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runLog, err := logging.Initialize(cfg.Output.LogDir)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer runLog.Close()
	logging.SetConsole(os.Stdout, logging.ParseLevel(cfg.Logging.Verbosity))

	logger := logging.MustLogger("tzaarbot")
	logger.Infof("tzaarbot v%s starting, run log %s", version, runLog.Path())

	var notifier alert.Notifier = alert.NewLogNotifier(logging.MustLogger("alert"))
	if cfg.Alert.SMTPAddr != "" {
		smtpNotifier, err := alert.NewSMTPNotifier(alert.SMTPConfig{
			Addr:          cfg.Alert.SMTPAddr,
			From:          cfg.Alert.From,
			To:            cfg.Alert.To,
			Username:      cfg.Alert.Username,
			Password:      cfg.Alert.Password,
			SubjectPrefix: cfg.Account.Username,
		})
		if err != nil {
			return fmt.Errorf("failed to create mail notifier: %w", err)
		}
		notifier = smtpNotifier
	}
	esc := escalation.NewEscalator(notifier, logging.MustLogger("escalation"), cfg.Platform.PollInterval)

	client, err := platform.NewClient(cfg.Platform.BaseURL, cfg.Account.Username, cfg.Account.Password,
		platform.WithUserAgent(cfg.Platform.UserAgent),
		platform.WithLogger(logging.MustLogger("platform")))
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}

	bridge, err := engine.NewBridge(engine.Config{
		Path:          cfg.Engine.Path,
		Profile:       cfg.Engine.Profile,
		PositionPath:  cfg.Engine.PositionFile,
		ResultPath:    cfg.Engine.ResultFile,
		ExecutedPath:  cfg.Engine.ExecutedFile,
		ArchiveDir:    cfg.Output.ArchiveDir,
		AlertPatterns: cfg.Engine.AlertMarkers,
	},
		engine.WithOutput(logging.Output()),
		engine.WithNotifier(esc.Notifier()),
		engine.WithLogger(logging.MustLogger("engine")))
	if err != nil {
		return fmt.Errorf("failed to create engine bridge: %w", err)
	}

	opts := []session.Option{
		session.WithRotator(runLog),
		session.WithLogger(logging.MustLogger("session")),
	}
	if cfg.Output.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Output.JournalPath), 0750); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		journal, err := history.Open(cfg.Output.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
		opts = append(opts, session.WithJournal(journal))
	}

	machine, err := session.NewMachine(session.Config{
		Account:       cfg.Account.Username,
		PollInterval:  cfg.Platform.PollInterval,
		InvitePattern: cfg.Platform.InvitePattern,
		InviteWindow:  cfg.Platform.InviteWindow,
	}, client, bridge, protocol.NewClient(client, logging.MustLogger("protocol")), esc, opts...)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if cli.Once {
		machine.Step(ctx)
		return nil
	}

	if err := machine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("tzaarbot stopped")
	return nil
}
