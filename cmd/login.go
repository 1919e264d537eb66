package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teachrad/radcase-console/internal/api"
	"github.com/teachrad/radcase-console/internal/auth"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the case store and save the API token",
	Long: `Exchange a username and password for an API token and save it to the
credentials file. The password can be passed with --password, via the
RADCASE_PASSWORD environment variable, or typed at the prompt.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove saved credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		credPath := cfg.API.TokenFile
		if credPath == "" {
			credPath = auth.DefaultPath()
		}
		if err := auth.Clear(credPath); err != nil {
			return fmt.Errorf("clear credentials: %w", err)
		}
		fmt.Println("Credentials removed.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prefer the prompt or RADCASE_PASSWORD)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := log.New(os.Stderr, "[login] ", log.LstdFlags)

	reader := bufio.NewReader(os.Stdin)
	username := loginUsername
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	password := loginPassword
	if password == "" {
		password = os.Getenv("RADCASE_PASSWORD")
	}
	if password == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	client, err := api.NewClient(cfg.API.BaseURL, "", logger)
	if err != nil {
		return err
	}
	token, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	credPath := cfg.API.TokenFile
	if credPath == "" {
		credPath = auth.DefaultPath()
	}
	creds := auth.Credentials{
		BaseURL:  cfg.API.BaseURL,
		Username: username,
		Token:    token,
	}
	if err := auth.Save(credPath, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Printf("Logged in as %s; token saved to %s\n", username, credPath)
	return nil
}
