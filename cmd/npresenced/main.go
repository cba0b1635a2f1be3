package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/daemon"
	"github.com/npresenced/npresenced/internal/lifecycle"
	"github.com/npresenced/npresenced/internal/logging"
	"github.com/npresenced/npresenced/internal/setup"
	"github.com/npresenced/npresenced/internal/store"
)

var (
	cfgPath         string
	bluetoothDevice string
	listenAddress   string
	listenPort      int
	daemonize       bool
	fast            bool
	logLevel        string
	logTarget       string
	debug           bool
	historyLimit    int
)

func main() {
	root := &cobra.Command{
		Use:     "npresenced",
		Short:   "Bluetooth presence daemon: tracks device reachability and serves subscriptions over TCP",
		Version: config.Version,
	}
	root.Flags().BoolP("version", "V", false, "print version and exit")

	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultConfigPath, "config file path")
	root.PersistentFlags().StringVarP(&bluetoothDevice, "bluetoothdevice", "b", "", "radio id passed to the lookup helper")
	root.PersistentFlags().StringVarP(&listenAddress, "listenaddress", "a", "", "IPv4 listen address")
	root.PersistentFlags().IntVarP(&listenPort, "listenport", "p", 0, "TCP listen port")
	root.PersistentFlags().BoolVarP(&daemonize, "daemon", "d", false, "run as a background daemon")
	root.PersistentFlags().BoolVar(&fast, "fast", false, "enable fast-presence slot packing")
	root.PersistentFlags().StringVarP(&logLevel, "loglevel", "l", "", "LOG_EMERG|LOG_ALERT|LOG_CRIT|LOG_ERR|LOG_WARNING|LOG_NOTICE|LOG_INFO|LOG_DEBUG")
	root.PersistentFlags().StringVarP(&logTarget, "logtarget", "t", "", "syslog|stdout")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging and the dump task")

	root.AddCommand(runCmd(), versionCmd(), configCheckCmd(), setupCmd(), historyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies any command-line overrides,
// per spec.md §6's flag surface.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if bluetoothDevice != "" {
		cfg.BluetoothDevice = bluetoothDevice
	}
	if listenAddress != "" {
		cfg.ListenAddress = listenAddress
	}
	if listenPort != 0 {
		cfg.ListenPort = listenPort
	}
	if daemonize {
		cfg.Daemonize = true
	}
	if fast {
		cfg.Fast = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logTarget != "" {
		cfg.LogTarget = logTarget
	}
	if debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the npresenced daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			logger, err := logging.New(cfg.LogTarget, level)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			logging.SetDefault(logger)

			lockPath, pidPath := lifecycle.DefaultLockPath(), ""
			if cfg.Daemonize {
				pidPath = lifecycle.DefaultPIDPath()
			}
			lock, err := lifecycle.AcquireLock(lockPath, pidPath)
			if err != nil {
				if errors.Is(err, lifecycle.ErrAlreadyRunning) {
					fmt.Fprintln(os.Stderr, "npresenced is already running")
					os.Exit(3)
				}
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer lock.Release()

			d, err := daemon.New(cfg)
			if err != nil {
				if errors.Is(err, daemon.ErrLookupUnavailable) {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(4)
				}
				if errors.Is(err, daemon.ErrBindFailed) {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(2)
				}
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer d.Close()

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				sig := lifecycle.WaitForShutdown()
				logging.Noticef("received %s, shutting down", sig)
				cancel()
			}()

			logging.Infof("npresenced %s listening on %s", config.Version, cfg.ListenAddr())
			if err := d.Run(ctx); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return nil
		},
	}
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-check",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("config OK: listening on %s, bluetoothdevice=%s, fast=%t\n",
				cfg.ListenAddr(), cfg.BluetoothDevice, cfg.Fast)
			return nil
		},
	}
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cfgPath)
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <mac>",
		Short: "Print the recorded up/down transition history for a MAC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if !cfg.History.Enabled {
				fmt.Fprintln(os.Stderr, "history is disabled in this config")
				os.Exit(1)
			}

			s, err := store.Open(cfg.History.Path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer s.Close()

			transitions, err := s.History(args[0], historyLimit)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if len(transitions) == 0 {
				fmt.Println("no recorded transitions for this MAC")
				return nil
			}
			for _, t := range transitions {
				fmt.Printf("%s  %-4s  %s\n", time.Unix(t.Timestamp, 0).UTC().Format(time.RFC3339), t.Edge, t.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of transitions to print")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", config.DaemonName, config.Version)
		},
	}
}
