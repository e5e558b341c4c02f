package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	noteCategoryID uint
	noteTags       []string
	listPage       int
	listLimit      int
	listSearch     string
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Create, list and manage notes",
}

var noteCreateCmd = &cobra.Command{
	Use:   "create [text]",
	Short: "Create a note (analysis runs asynchronously)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{
			"text": args[0],
			"tags": noteTags,
		}
		if noteCategoryID != 0 {
			body["categoryId"] = noteCategoryID
		}
		data, err := doRequest(http.MethodPost, "/api/v1/notes", body, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes with pagination",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/v1/notes?page=%d&limit=%d", listPage, listLimit)
		if noteCategoryID != 0 {
			path += fmt.Sprintf("&categoryId=%d", noteCategoryID)
		}
		if listSearch != "" {
			path += "&search=" + url.QueryEscape(listSearch)
		}
		data, err := doRequest(http.MethodGet, path, nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var noteGetCmd = &cobra.Command{
	Use:   "get [note-id]",
	Short: "Show a single note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseUint(args[0], 10, 32); err != nil {
			return fmt.Errorf("无效的笔记 ID: %s", args[0])
		}
		data, err := doRequest(http.MethodGet, "/api/v1/notes/"+args[0], nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var noteDeleteCmd = &cobra.Command{
	Use:   "delete [note-id]",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodDelete, "/api/v1/notes/"+args[0], nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var noteRetryCmd = &cobra.Command{
	Use:   "retry [note-id]",
	Short: "Re-run the analysis pipeline for a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodPost, "/api/v1/notes/"+args[0]+"/analyze", nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage note categories",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories with note counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodGet, "/api/v1/categories", nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var categoryCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodPost, "/api/v1/categories", map[string]string{"name": args[0]}, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var categoryRenameCmd = &cobra.Command{
	Use:   "rename [category-id] [new-name]",
	Short: "Rename a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodPut, "/api/v1/categories/"+args[0], map[string]string{"name": args[1]}, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete [category-id]",
	Short: "Delete a category (its notes are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodDelete, "/api/v1/categories/"+args[0], nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(noteCreateCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteGetCmd)
	noteCmd.AddCommand(noteDeleteCmd)
	noteCmd.AddCommand(noteRetryCmd)

	noteCreateCmd.Flags().UintVar(&noteCategoryID, "category", 0, "explicit category ID")
	noteCreateCmd.Flags().StringSliceVar(&noteTags, "tag", nil, "tags to attach (repeatable)")
	noteListCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	noteListCmd.Flags().IntVar(&listLimit, "limit", 20, "page size")
	noteListCmd.Flags().UintVar(&noteCategoryID, "category", 0, "filter by category ID")
	noteListCmd.Flags().StringVar(&listSearch, "search", "", "title/keyword filter")

	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryCreateCmd)
	categoryCmd.AddCommand(categoryRenameCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)
}
