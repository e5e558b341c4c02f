package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search across your notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodPost, "/api/v1/search", map[string]interface{}{
			"query": args[0],
			"limit": searchLimit,
		}, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
}
