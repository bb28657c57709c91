package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/strata/pkg/api"
	"github.com/cuemby/strata/pkg/detector"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/master"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "strata",
	Short:   "strata - tiered-storage block master",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"strata version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(masterCmd)
	masterCmd.AddCommand(masterRunCmd)
	masterCmd.AddCommand(masterBootstrapCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run or bootstrap a block master",
}

func init() {
	for _, cmd := range []*cobra.Command{masterRunCmd, masterBootstrapCmd} {
		cmd.Flags().String("node-id", "strata-master-1", "Journal node id")
		cmd.Flags().String("bind-addr", "127.0.0.1:9180", "Journal transport bind address")
		cmd.Flags().String("api-addr", "127.0.0.1:9181", "Health/ready/metrics HTTP bind address")
		cmd.Flags().String("data-dir", "./data", "Journal data directory")
		cmd.Flags().StringSlice("tier-order", []string{"MEM", "SSD", "HDD"}, "Storage tier ordinal order, outermost first")
		cmd.Flags().Int64("worker-timeout-ms", 30_000, "master.worker.timeout.ms: lost-worker threshold")
		cmd.Flags().Int64("heartbeat-interval-ms", 5_000, "master.heartbeat.interval.ms: detector sweep period")
		cmd.Flags().String("config", "", "Optional YAML config file overriding the flags above")
	}
}

var masterBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a fresh journal data directory and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadMasterConfig(cmd)
		if err != nil {
			return err
		}

		m := master.New(cfg.toMasterConfig())
		if err := m.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		fmt.Printf("journal bootstrapped at %s\n", cfg.DataDir)
		return m.Shutdown()
	},
}

var masterRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the block master",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadMasterConfig(cmd)
		if err != nil {
			return err
		}

		m := master.New(cfg.toMasterConfig())
		if err := m.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		log.WithComponent("cmd").Info().
			Str("node_id", cfg.NodeID).
			Str("bind_addr", cfg.BindAddr).
			Msg("journal bootstrapped")

		metricsCollector := metrics.NewCollector(m)
		metricsCollector.Start()

		det := detector.New(m, time.Duration(cfg.HeartbeatIntervalMs)*time.Millisecond, time.Duration(cfg.WorkerTimeoutMs)*time.Millisecond)
		det.Start()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("journal", true, "bootstrapped")
		metrics.RegisterComponent("master", true, "ready")
		metrics.RegisterComponent("api", true, "ready")

		healthServer := api.NewHealthServer(m)
		errCh := make(chan error, 1)
		go func() {
			if err := healthServer.Start(cfg.APIAddr); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("health server: %w", err)
			}
		}()

		log.WithComponent("cmd").Info().Str("addr", cfg.APIAddr).Msg("health/ready/metrics server listening")
		fmt.Printf("strata master running; health endpoints on http://%s\n", cfg.APIAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

		det.Stop()
		metricsCollector.Stop()
		return m.Shutdown()
	},
}

type masterConfig struct {
	NodeID              string   `yaml:"node_id"`
	BindAddr            string   `yaml:"bind_addr"`
	APIAddr             string   `yaml:"api_addr"`
	DataDir             string   `yaml:"data_dir"`
	TierOrder           []string `yaml:"tier_order"`
	WorkerTimeoutMs     int64    `yaml:"worker_timeout_ms"`
	HeartbeatIntervalMs int64    `yaml:"heartbeat_interval_ms"`
}

func (c masterConfig) toMasterConfig() master.Config {
	tiers := make([]types.TierAlias, len(c.TierOrder))
	for i, t := range c.TierOrder {
		tiers[i] = types.TierAlias(t)
	}
	return master.Config{
		NodeID:    c.NodeID,
		BindAddr:  c.BindAddr,
		DataDir:   c.DataDir,
		TierOrder: tiers,
	}
}

func loadMasterConfig(cmd *cobra.Command) (masterConfig, error) {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	apiAddr, _ := cmd.Flags().GetString("api-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	tierOrder, _ := cmd.Flags().GetStringSlice("tier-order")
	workerTimeoutMs, _ := cmd.Flags().GetInt64("worker-timeout-ms")
	heartbeatIntervalMs, _ := cmd.Flags().GetInt64("heartbeat-interval-ms")

	cfg := masterConfig{
		NodeID:              nodeID,
		BindAddr:            bindAddr,
		APIAddr:             apiAddr,
		DataDir:             dataDir,
		TierOrder:           tierOrder,
		WorkerTimeoutMs:     workerTimeoutMs,
		HeartbeatIntervalMs: heartbeatIntervalMs,
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		if err := mergeYAMLConfig(configPath, &cfg); err != nil {
			return masterConfig{}, err
		}
	}
	return cfg, nil
}
