package cmd

import (
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a registered runner synchronously",
	Long: `Run a registered runner on the server with the given payload and wait
for the result. Nothing is persisted; this is a smoke-test path.

Example:
  batchctl run --type code.index --payload '{"root":"/src","output":"/tmp/idx"}'`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		typeCode, _ := flags.GetString("type")
		payload, _ := flags.GetString("payload")

		if typeCode == "" {
			cmd.Println("Error: --type is required")
			return
		}

		form := url.Values{}
		form.Set("type", typeCode)
		form.Set("payload", payload)

		client := NewAdminClient(viper.GetString("url"))
		outcome, err := client.PostForm("/manual/run", form)
		if err != nil {
			cmd.Printf("Run failed: %v\n", err)
			return
		}
		if !outcome.OK {
			cmd.Printf("Run failed: %s (cost %sms)\n", outcome.Error, outcome.Cost)
			return
		}
		cmd.Printf("Run succeeded (cost %sms)\n", outcome.Cost)
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringP("type", "t", "", "Runner type code (required)")
	flags.StringP("payload", "p", "", "JSON payload (default {})")
}
