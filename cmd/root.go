package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/config"
	"github.com/bebsworthy/arcset/internal/errors"
)

// programName prefixes console output and error reports
const programName = "arcset"

var (
	// Global flags
	configFile  string
	channelName string
	verbose     bool

	// Global configuration
	appConfig *config.Config
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   programName,
	Short: "arcset - parallel approximation of minimum feedback arc sets",
	Long: `arcset approximates a minimum feedback arc set of a directed graph.

Any number of generator processes draw random feedback arc sets of the same
graph and publish them into a bounded shared memory channel. One supervisor
process drains the channel, reports every strict improvement and stops once a
solution with zero edges proves the graph is acyclic.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute runs the command line and returns the process exit code. It is
// called by main.main().
func Execute() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		reportError(cmd, err, stderr)
	}
	return errors.ExitCode(err)
}

// reportError prints every failure as "arcset <command>: <message>" and the
// usage line for usage errors
func reportError(cmd *cobra.Command, err error, w io.Writer) {
	prefix := programName
	if cmd != nil && cmd != rootCmd {
		prefix = cmd.CommandPath()
	}

	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(w, "%s: %v\n", prefix, e)
	}

	if errors.IsType(err, errors.ErrorTypeUsage) && cmd != nil {
		fmt.Fprintf(w, "Usage: %s\n", cmd.UseLine())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.UsageError(err.Error(), nil)
	})

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $ARCSET_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&channelName, "channel", "", "channel name (overrides channel.name)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configPath := configFile
	if configPath == "" {
		if envConfig := os.Getenv("ARCSET_CONFIG"); envConfig != "" {
			configPath = envConfig
		}
	}

	appConfig, configErr = config.LoadConfig(configPath)
	if configErr != nil {
		configErr = fmt.Errorf("error loading configuration: %w", configErr)
		return
	}

	if channelName != "" {
		if strings.ContainsRune(channelName, '/') {
			configErr = errors.UsageError(fmt.Sprintf("channel name must not contain '/', got %s", channelName), nil)
			return
		}
		appConfig.Channel.Name = channelName
	}

	if verbose {
		appConfig.Logging.Verbose = true
	}
	if appConfig.Logging.Verbose {
		appConfig.Logging.Level = "debug"

		w := rootCmd.ErrOrStderr()
		if configPath != "" {
			fmt.Fprintf(w, "Loaded configuration from: %s\n", configPath)
		} else {
			fmt.Fprintf(w, "Configuration searched in: %s\n", strings.Join(config.GetConfigPaths(), ", "))
		}
		fmt.Fprintf(w, "Channel: %s (override with --channel or %s)\n",
			appConfig.Channel.Name, config.GetEnvVarName("channel.name"))
	}
}

// GetConfig returns the global configuration
// This should be called after cobra initialization
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

// noArgs rejects positional arguments with a usage error
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.UsageError(fmt.Sprintf("unexpected argument %q", args[0]), nil)
	}
	return nil
}
