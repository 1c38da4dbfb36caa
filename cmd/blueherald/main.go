package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/blueherald/blueherald/internal/config"
)

const (
	appName = "blueherald"
	version = "v1.0.0"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Automated crypto news agent for Bluesky",
		Version: version,
		Long: `BlueHerald retrieves cryptocurrency news, generates short posts,
filters them for quality and duplicates, and publishes the survivors
to Bluesky on a schedule. A management API exposes status, metrics,
manual overrides and A/B test results.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the posting agent and management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(configPath)
		},
	}

	var dryRun bool
	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Execute a single posting workflow and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(configPath, dryRun)
		},
	}
	postCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate and filter content but do not post")

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run one strategy optimization cycle and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(configPath)
		},
	}

	var healthAddr string
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running agent's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkHealth(healthAddr)
		},
	}
	healthCmd.Flags().StringVar(&healthAddr, "addr", "http://127.0.0.1:8080", "Management API base URL")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(runCmd, postCmd, optimizeCmd, healthCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	application, err := buildApp(cfg, nil)
	if err != nil {
		return err
	}
	defer application.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- application.scheduler.Start(ctx)
	}()
	go func() {
		errCh <- application.server.Start()
	}()

	log.Info().
		Str("version", version).
		Dur("interval", cfg.Scheduler.Interval).
		Msg("blueherald agent started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("component failed")
			cancel()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := application.server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown incomplete")
	}
	return nil
}

func runOnce(configPath string, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	var application *app
	if dryRun {
		application, err = buildApp(cfg, dryRunPublisher{})
	} else {
		application, err = buildApp(cfg, nil)
	}
	if err != nil {
		return err
	}
	defer application.close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.MaxExecutionTime)
	defer cancel()

	result, err := application.agent.ExecuteWorkflow(ctx)
	if err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}
	if !result.Success {
		log.Warn().Str("error", result.Error).Msg("no post published")
		return nil
	}
	log.Info().Str("post_id", result.PostID).Msg("post published")
	return nil
}

func runOptimize(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	application, err := buildApp(cfg, nil)
	if err != nil {
		return err
	}
	defer application.close()

	result, err := application.optimizer.RunOptimizationCycle()
	if err != nil {
		return fmt.Errorf("optimization cycle failed: %w", err)
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func checkHealth(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
