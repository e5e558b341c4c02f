package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Register, login and manage the current session",
}

var registerCmd = &cobra.Command{
	Use:   "register [username] [password]",
	Short: "Register a new NoteFlow account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
			"username": args[0],
			"password": args[1],
		}, false)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [username] [password]",
	Short: "Login and cache the session token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": args[0],
			"password": args[1],
		}, false)
		if err != nil {
			return err
		}

		var resp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(data, &resp); err != nil || resp.Token == "" {
			return fmt.Errorf("登录响应里没有 token")
		}
		if err := saveToken(resp.Token); err != nil {
			return fmt.Errorf("缓存 token 失败: %w", err)
		}
		fmt.Println("登录成功，token 已缓存。")
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the current user's profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := doRequest(http.MethodGet, "/api/v1/auth/me", nil, true)
		if err != nil {
			return err
		}
		printJSON(data)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout and clear the cached token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := doRequest(http.MethodPost, "/api/v1/auth/logout", nil, true); err != nil {
			return err
		}
		if err := clearToken(); err != nil {
			return err
		}
		fmt.Println("已登出。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(meCmd)
	authCmd.AddCommand(logoutCmd)
}
