package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage cron schedules",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schedule",
	Long: `Create a cron-driven schedule.

Example:
  batchctl schedule create --type code.index --cron "0 3 * * *" --payload '{"root":"/src","output":"/tmp/idx"}'`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		typeCode, _ := flags.GetString("type")
		cronExpr, _ := flags.GetString("cron")
		payload, _ := flags.GetString("payload")
		disabled, _ := flags.GetBool("disabled")

		if typeCode == "" || cronExpr == "" {
			cmd.Println("Error: --type and --cron are required")
			return
		}

		form := url.Values{}
		form.Set("type", typeCode)
		form.Set("cron", cronExpr)
		form.Set("payload", payload)
		if disabled {
			form.Set("enabled", "false")
		}

		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm("/schedules", form)
		if err != nil {
			cmd.Printf("Create failed: %v\n", err)
			return
		}
		if !outcome.OK {
			cmd.Printf("Create rejected: %s\n", outcome.Error)
			return
		}
		cmd.Println("Schedule created")
	},
}

var scheduleToggleCmd = &cobra.Command{
	Use:   "toggle <schedule-id>",
	Short: "Enable or disable a schedule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		enabled, _ := cmd.Flags().GetBool("enabled")

		form := url.Values{}
		form.Set("enabled", fmt.Sprintf("%t", enabled))

		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm(fmt.Sprintf("/schedule/%s/toggle", args[0]), form)
		if err != nil {
			cmd.Printf("Toggle failed: %v\n", err)
			return
		}
		if !outcome.OK {
			cmd.Printf("Toggle rejected: %s\n", outcome.Error)
			return
		}
		cmd.Printf("Schedule %s enabled=%t\n", args[0], enabled)
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <schedule-id>",
	Short: "Delete a schedule (refused while tasks reference it)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm(fmt.Sprintf("/schedule/%s/delete", args[0]), url.Values{})
		if err != nil {
			cmd.Printf("Delete failed: %v\n", err)
			return
		}
		if !outcome.OK {
			cmd.Printf("Delete rejected: %s\n", outcome.Error)
			return
		}
		cmd.Println(outcome.Info)
	},
}

func init() {
	flags := scheduleCreateCmd.Flags()
	flags.StringP("type", "t", "", "Task type code (required)")
	flags.StringP("cron", "c", "", "Cron expression (required)")
	flags.StringP("payload", "p", "", "JSON payload (default {})")
	flags.Bool("disabled", false, "Create the schedule disabled")

	scheduleToggleCmd.Flags().Bool("enabled", true, "Target enabled state")

	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleToggleCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
}
