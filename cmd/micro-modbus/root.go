package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// Global flags
	bindAddr    string
	bindPort    int
	maxConns    int
	idleTimeout time.Duration
	storeType   string
	storePath   string
	verbose     bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "micro-modbus",
	Short: "A Modbus TCP server daemon",
	Long: `micro-modbus serves the four standard Modbus data tables over TCP.

The data model covers the full 16-bit address space for coils, discrete
inputs, holding registers and input registers, optionally persisted in a
memory-mapped file so register contents survive restarts.

Examples:
  # Serve on the default port with an in-memory data model
  micro-modbus serve

  # Persist registers in a file, allow at most 10 clients
  micro-modbus serve --store mmap --store-path /var/lib/micro-modbus/data.bin --max-conns 10

  # Bind a non-privileged port with a short idle timeout
  micro-modbus serve -P 1502 --idle-timeout 10s`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.micro-modbus.yaml)")

	rootCmd.PersistentFlags().StringVarP(&bindAddr, "address", "A", "0.0.0.0", "Address to bind")
	rootCmd.PersistentFlags().IntVarP(&bindPort, "port", "P", 502, "Port to bind")
	rootCmd.PersistentFlags().IntVarP(&maxConns, "max-conns", "C", 32, "Maximum number of concurrent client connections")
	rootCmd.PersistentFlags().DurationVar(&idleTimeout, "idle-timeout", 30*time.Second, "Close connections idle for longer than this")
	rootCmd.PersistentFlags().StringVar(&storeType, "store", "memory", "Data store backend: memory, mmap")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Backing file path for the mmap store")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	viper.BindPFlag("address", rootCmd.PersistentFlags().Lookup("address"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("max_conns", rootCmd.PersistentFlags().Lookup("max-conns"))
	viper.BindPFlag("idle_timeout", rootCmd.PersistentFlags().Lookup("idle-timeout"))
	viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("store_path", rootCmd.PersistentFlags().Lookup("store-path"))

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".micro-modbus")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MODBUS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func listenAddress() string {
	return fmt.Sprintf("%s:%d", viper.GetString("address"), viper.GetInt("port"))
}
