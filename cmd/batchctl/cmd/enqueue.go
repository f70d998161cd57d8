package cmd

import (
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue an ad-hoc task",
	Long: `Enqueue a task for asynchronous execution.

Examples:
  batchctl enqueue --type code.index --payload '{"root":"/src","output":"/tmp/idx"}'
  batchctl enqueue --type code.index --not-before "2025-09-22 08:00:00"`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		typeCode, _ := flags.GetString("type")
		payload, _ := flags.GetString("payload")
		notBefore, _ := flags.GetString("not-before")
		priority, _ := flags.GetString("priority")

		if typeCode == "" {
			cmd.Println("Error: --type is required")
			return
		}

		form := url.Values{}
		form.Set("type", typeCode)
		form.Set("payload", payload)
		if notBefore != "" {
			form.Set("notBefore", notBefore)
		}
		if priority != "" {
			form.Set("priority", priority)
		}

		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm("/tasks/enqueue", form)
		if err != nil {
			cmd.Printf("Enqueue failed: %v\n", err)
			return
		}
		if !outcome.OK {
			cmd.Printf("Enqueue rejected: %s\n", outcome.Error)
			return
		}
		cmd.Println("Task enqueued")
	},
}

func init() {
	flags := enqueueCmd.Flags()
	flags.StringP("type", "t", "", "Task type code (required)")
	flags.StringP("payload", "p", "", "JSON payload (default {})")
	flags.String("not-before", "", "Earliest execution instant (YYYY-MM-DD HH:MM[:SS])")
	flags.String("priority", "", "Task priority (higher runs first)")
}
