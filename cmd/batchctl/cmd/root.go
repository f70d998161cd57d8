// Package cmd contains the batchctl subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "batchctl",
	Short: "batchctl is a command line tool for the batchplane scheduler",
	Long: `batchctl is the command-line interface for the batchplane batch task
scheduler. It talks to the admin surface of a running batchplane server.

Common workflows:

  Enqueue an ad-hoc task:
    batchctl enqueue --type code.index --payload '{"root":"/src","output":"/tmp/idx"}'

  Create a cron schedule:
    batchctl schedule create --type code.index --cron "0 3 * * *" --payload '{}'

  Cancel a task:
    batchctl cancel <task-id>

  Inspect schedules and recent tasks:
    batchctl status

Configuration:
  Set the admin endpoint via a flag, environment variable or config file:
    BATCHPLANE_URL    admin endpoint (default: http://localhost:6161)`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".batchctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BATCHPLANE")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.batchctl.yaml)")
	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "batchplane admin endpoint")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statusCmd)
}
