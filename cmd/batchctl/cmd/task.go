package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task",
	Long: `Cancel a task. A PENDING task becomes CANCELED immediately; a RUNNING
task gets a cooperative cancel request it observes at its next check.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm(fmt.Sprintf("/tasks/%s/cancel", args[0]), url.Values{})
		if err != nil {
			cmd.Printf("Cancel failed: %v\n", err)
			return
		}
		if !outcome.OK {
			cmd.Printf("Cancel rejected: %s\n", outcome.Error)
			return
		}
		cmd.Println(outcome.Info)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task (refused while RUNNING or cancel-pending)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm(fmt.Sprintf("/tasks/%s/delete", args[0]), url.Values{})
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
