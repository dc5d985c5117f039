// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejiriaustin/tiffwatch/config"
	"github.com/tejiriaustin/tiffwatch/logger"
)

var (
	cfgFile  string
	logLevel string
	devMode  bool
	log      *logger.Logger
	validate = validator.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tiffwatch",
	Short: "TIFF directory watcher",
	Long: `A CLI tool that polls a directory for .tif/.tiff files, reports how many
arrived since the last poll and how much disk space remains to chat webhooks,
and analyses the timing of timestamped log files.`,
	SilenceUsage: true,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watcher",
	Run:   stopDaemon,
}

func checkHealthEndpoint(url string) (string, error) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return "Stopped", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return "Running", nil
	}
	return "Unhealthy", fmt.Errorf("health endpoint returned %s", resp.Status)
}

func healthURL(port string) string {
	if strings.HasPrefix(port, ":") {
		port = "localhost" + port
	}
	return fmt.Sprintf("http://%s/health", port)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the watcher is running",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := currentConfig()

		status, err := checkHealthEndpoint(healthURL(cfg.Port))
		paint := color.New(color.FgGreen, color.Bold).SprintFunc()
		if err != nil {
			paint = color.New(color.FgRed, color.Bold).SprintFunc()
			log.Debugw("Health check failed", "error", err)
		}
		fmt.Printf("Watcher Status:  %s\n", paint(status))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration for the watcher",
	Long:  `View or modify the configuration for the watcher.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(viper.AllSettings())
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("# %s\n", used)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]
		viper.Set(key, value)

		if _, err := config.Load(viper.GetViper(), validate); err != nil {
			return err
		}

		if err := viper.WriteConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("error writing config: %w", err)
			}
			if err := viper.SafeWriteConfigAs("config.yaml"); err != nil {
				return fmt.Errorf("error writing config: %w", err)
			}
		}
		log.Infow("Configuration updated", "key", key, "value", value)
		return nil
	},
}

// currentConfig returns the loaded configuration, or the process-level
// settings alone when the full configuration does not validate.
func currentConfig() *config.Config {
	if cfg := config.GetConfig(); cfg.Port != "" {
		return cfg
	}
	return &config.Config{
		Port:         viper.GetString("port"),
		DatabasePath: viper.GetString("database_path"),
		PidFilePath:  viper.GetString("pid_file_path"),
	}
}

func buildLogger() {
	logCfg := logger.Config{
		LogLevel:    logLevel,
		DevMode:     devMode,
		ServiceName: "tiffwatch",
	}
	var err error
	log, err = logger.NewLogger(logCfg)
	if err != nil {
		panic(fmt.Errorf("failed to create logger: %v", err))
	}
}

func initConfig() {
	if err := config.InitConfig(cfgFile, validate, log); err != nil {
		// parse-log and fake-log work without a watch directory
		log.Debugw("Configuration incomplete", "error", err)
	}
}

func init() {
	cobra.OnInitialize(buildLogger, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", true, "human readable console logs")

	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}
