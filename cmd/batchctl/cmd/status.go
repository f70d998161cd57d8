package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schedules, recent tasks and registered runner types",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAdminClient(viper.GetString("url"))
		overview, err := client.Overview()
		if err != nil {
			cmd.Printf("Status failed: %v\n", err)
			return
		}

		cmd.Printf("Runners: %v\n\n", overview.Runners)

		cmd.Println("Schedules:")
		if len(overview.Schedules) == 0 {
			cmd.Println("  (none)")
		}
		for _, s := range overview.Schedules {
			last := "-"
			if s.LastFireAt != nil {
				last = s.LastFireAt.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("  #%d  %-20s %-16s enabled=%-5t last_fire=%s\n",
				s.ID, s.Type, s.Cron, s.Enabled, last)
		}

		cmd.Println("\nRecent tasks:")
		if len(overview.Tasks) == 0 {
			cmd.Println("  (none)")
		}
		for _, t := range overview.Tasks {
			msg := ""
			if t.Message != nil {
				msg = *t.Message
			}
			cmd.Printf("  #%d  %-20s %-16s attempts=%d %s\n",
				t.ID, t.Type, t.Status, t.Attempts, msg)
		}
	},
}
