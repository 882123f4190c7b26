package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuriipolishchuk/ssh2iot/internal/app"
	"github.com/yuriipolishchuk/ssh2iot/internal/config"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

var (
	verbose     bool
	jsonOutput  bool
	configPath  string
	regionFlag  string
	profileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "ssh2iot",
	Short: "SSH to IoT things over AWS IoT Secure Tunneling",
	Long: `ssh2iot connects to IoT things behind firewalls via SSH over
AWS IoT Secure Tunneling.

On the operator side it opens (or attaches to) a tunnel, waits for the
device to connect, starts localproxy in source mode and runs ssh through
it. On the device, 'ssh2iot agent' listens for tunnel notifications and
starts localproxy in destination mode.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		return initApp(cmd.Context())
	},
}

// Execute runs the root command and reports any error once.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logging.UserError("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVarP(&regionFlag, "region", "r", "", "AWS region (default from config, "+config.DefaultRegion+")")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "AWS shared config profile")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// initApp loads the configuration and builds app.Default unless one is
// already set.
func initApp(ctx context.Context) error {
	if app.Default != nil {
		return nil
	}

	path, required := configPath, configPath != ""
	if !required {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return errors.ConfigError("failed to load configuration", err)
	}

	if regionFlag != "" {
		if err := config.ValidateRegion(regionFlag); err != nil {
			return errors.ValidationError(err.Error())
		}
		cfg.Region = regionFlag
	}
	if profileFlag != "" {
		cfg.Profile = profileFlag
	}

	a, err := app.New(ctx, app.WithConfig(cfg))
	if err != nil {
		return err
	}
	app.SetDefault(a)
	return nil
}
