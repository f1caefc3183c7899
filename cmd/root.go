package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/TFMV/vfswatch/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vfswatch",
	Short: "Watch virtual filesystem namespaces for changes",
	Long: `vfswatch mounts host directories into a single virtual namespace and reports
the changes made below it. It also exposes the path and filter rules the
watchers use, for checking patterns before relying on them.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Failures and panics are logged before they are returned.
func Execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			reportError(err)
		}
	}()
	if err = rootCmd.Execute(); err != nil {
		reportError(err)
	}
	return err
}

// reportError logs err with the configured logger, or at error level when the
// configured level is itself invalid.
func reportError(err error) {
	logger, lerr := newLogger()
	if lerr != nil {
		logger = watch.NewLogger(watch.LogLevelError)
	}
	logger.Error("command failed", zap.Error(err))
	_ = logger.Sync()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.vfswatch.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().Bool("silent", false, "Disable all output except errors")
	rootCmd.PersistentFlags().String("format", "text", "Output format (text|json|yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (error|warn|info|debug), overrides --verbose and --silent")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("silent", rootCmd.PersistentFlags().Lookup("silent"))
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".vfswatch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vfswatch")
	}

	// VFSWATCH_WATCH_FILTER overrides watch.filter, and so on.
	viper.SetEnvPrefix("vfswatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// logLevel maps the log-level, verbose and silent settings to a log level.
func logLevel() (watch.LogLevel, error) {
	if s := viper.GetString("log-level"); s != "" {
		return watch.ParseLogLevel(s)
	}
	switch {
	case viper.GetBool("verbose"):
		return watch.LogLevelDebug, nil
	case viper.GetBool("silent"):
		return watch.LogLevelError, nil
	}
	return watch.LogLevelWarn, nil
}

func newLogger() (*zap.Logger, error) {
	level, err := logLevel()
	if err != nil {
		return nil, err
	}
	return watch.NewLogger(level), nil
}
