package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/cmd/cli/authentication"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// auth.go handles authentication commands: login, logout and status.

// authCmd represents the auth command for authentication related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Store the console access token used by every other command.`,
}

// loginCmd stores a token copied from the console, or asks a development server for one
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token in the OS keyring",
	Example: `  smsnotify auth login --token eyJhbGciOi...
  smsnotify auth login --dev-user student-1 --role student`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		devUser, _ := cmd.Flags().GetString("dev-user")
		role, _ := cmd.Flags().GetString("role")

		if token == "" && devUser == "" {
			return errors.New("either --token or --dev-user is required")
		}
		if token == "" {
			issued, err := requestDevToken(cmd.Context(), settings.APIURL, devUser, role)
			if err != nil {
				return fmt.Errorf("login process failed: %w", err)
			}
			token = issued
		}

		creds, err := authentication.CredentialsFromToken(token)
		if err != nil {
			return fmt.Errorf("not a valid access token: %w", err)
		}
		if err := authentication.StoreTokens(creds); err != nil {
			return fmt.Errorf("saving token to keyring: %w", err)
		}

		color.Green("✓ Logged in as %s", creds.UserID)
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authentication.DeleteTokens(); err != nil {
			return err
		}
		color.Green("✓ Successfully logged out.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := authentication.GetTokens()
		if err != nil {
			return err
		}
		fmt.Printf("User: %s\n", creds.UserID)
		switch {
		case creds.ExpiresAt == 0:
			fmt.Println("Expires: never")
		case creds.Expired(time.Now()):
			color.Red("Expired: %s", time.Unix(creds.ExpiresAt, 0).Format(time.RFC1123))
		default:
			fmt.Printf("Expires: %s\n", time.Unix(creds.ExpiresAt, 0).Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)

	loginCmd.Flags().StringP("token", "t", "", "access token issued by the console")
	loginCmd.Flags().String("dev-user", "", "request a token for this user from a development server")
	loginCmd.Flags().String("role", "student", "role for --dev-user (admin, teacher, student)")
	loginCmd.MarkFlagsMutuallyExclusive("token", "dev-user")
}

// requestDevToken calls POST {api}/auth/token, only served when GO_ENV=development
func requestDevToken(ctx context.Context, api, userID, role string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := json.Marshal(map[string]string{"user_id": userID, "role": role})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(api, "/")+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("unexpected response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, result.Error)
	}
	return result.AccessToken, nil
}
