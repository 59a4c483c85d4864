package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/vidfetch/vidfetch/internal/log"
	"github.com/vidfetch/vidfetch/internal/model"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

const envFileName = "config.env"

var (
	userConfigPath string // /default/config/path/vidfetch on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logSink        io.Closer

	flagConfigFilePath string   // value of --config flag
	flagVerbose        bool     // value of --verbose flag
	flagEnvFiles       []string // value of --env-file flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		// no $HOME in minimal containers
		d = "."
	}
	userConfigPath = filepath.Join(d, "vidfetch")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is vidfetch.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().StringSliceVar(&flagEnvFiles, "env-file", nil, "additional .env files to load, "+envFileName+" in current directory is always tried")

	redeliverCmd.Flags().StringVar(&flagSchedule, "schedule", "", "cron expression, repeat redelivery until interrupted")
	redeliverCmd.Flags().Float64Var(&flagRate, "rate", 1, "maximum deliveries per second, 0 disables the limit")

	// stdout carries the protocol line, never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initVidfetch

	rootCmd.AddCommand(redeliverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, err := rootCmd.ExecuteContextC(ctx)
	stop()
	if err != nil {
		protocolError(os.Stdout, cmd, err)
		slog.Error("vidfetch failed", "err", err)
	}
	if logSink != nil {
		_ = logSink.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vidfetch",
	Short: "Downloads media with yt-dlp and reports the result to a callback",
	Long: `vidfetch reads one JSON request from standard input and answers with
exactly one JSON line on standard output. Submissions are acknowledged
immediately, processed in the background and the result is posted to the
callback URL. Results which cannot be delivered are stored on disk.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         doWork,
}

var redeliverCmd = &cobra.Command{
	Use:   "redeliver",
	Short: "posts stored results to the callback again",
	Args:  cobra.NoArgs,
	RunE:  doRedeliver,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "prints the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a vidfetch",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("vidfetch: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("vidfetch: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initVidfetch(cmd *cobra.Command, _ []string) error {
	// the real environment always wins over .env files
	if err := model.LoadEnvFiles(append([]string{envFileName}, flagEnvFiles...)...); err != nil {
		return err
	}

	if envConfig, ok := os.LookupEnv("VIDFETCHCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "vidfetch.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		config = model.DefaultConfig()
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d.String())
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		if err := model.LoadEnvFiles(filepath.Join(filepath.Dir(configPath), envFileName)); err != nil {
			return err
		}
	}

	var err error
	config, err = model.ApplyEnv(config, os.LookupEnv)
	if err != nil {
		return err
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	// initialize logging
	sink, err := log.Sink(config.Log)
	if err != nil {
		return err
	}
	logSink = sink
	slog.SetDefault(log.New(sink, config.Verbose))

	slog.Debug("vidfetch run", "configPath", configPath)
	slog.Debug("vidfetch run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist) && info != nil && info.Mode().IsRegular()
}
