package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/metrics"
	"firestige.xyz/otus/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the capture pipeline in the foreground",
	Long: `Start loads configuration and the rules document, wires the
capture pipeline (C1-C7), and runs until interrupted (SIGINT/SIGTERM).
SIGHUP reloads the rules document without stopping the process.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	log.Init(logCfg)
	logger := log.GetLogger().WithField("component", "cmd.start")

	doc, err := config.LoadRulesDocument(rulesFile)
	if err != nil {
		return fmt.Errorf("failed to load rules document: %w", err)
	}

	sup := supervisor.New(cfg)
	if err := sup.LoadRules(doc); err != nil {
		return fmt.Errorf("failed to apply rules document: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}
	logger.Info("capture pipeline started")

	metricsSrv := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
	if err := metricsSrv.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start metrics server")
	}

	if err := writePIDFile(pidFile); err != nil {
		logger.WithError(err).Warn("failed to write pid file")
	}
	defer removePIDFile(pidFile)

	fmt.Fprintln(cmd.OutOrStdout(), "otus started, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reloading rules document")
			reloaded, err := config.LoadRulesDocument(rulesFile)
			if err != nil {
				logger.WithError(err).Error("failed to reload rules document")
				continue
			}
			if err := sup.LoadRules(reloaded); err != nil {
				logger.WithError(err).Error("failed to apply reloaded rules document")
			}
		default:
			logger.Infof("received %s, shutting down", sig)
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := sup.Stop(stopCtx); err != nil {
				logger.WithError(err).Error("error stopping supervisor")
			}
			if err := metricsSrv.Stop(stopCtx); err != nil {
				logger.WithError(err).Error("error stopping metrics server")
			}
			stopCancel()
			return nil
		}
	}
}
