package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/cmd/cli/authentication"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/notify"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/presenter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// notificationsCmd groups the notification commands
var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "List, read, delete and watch notifications",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		unreadOnly, _ := cmd.Flags().GetBool("unread")
		skip, _ := cmd.Flags().GetInt("skip")
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = settings.PageSize
		}

		page, err := api.FetchPage(commandContext(cmd), skip, limit, unreadOnly)
		if err != nil {
			return explain(err)
		}

		if len(page.Items) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		for _, n := range page.Items {
			fmt.Println(presenter.NewItemCard(n).String())
			fmt.Println()
		}
		color.New(color.Faint).Printf("Showing %d-%d of %d · %d unread\n", skip+1, skip+len(page.Items), page.Total, page.UnreadCount)
		return nil
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread count",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		count, err := api.FetchUnreadCount(commandContext(cmd))
		if err != nil {
			return explain(err)
		}
		fmt.Printf("🔔 %d unread\n", count)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark one notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := api.MarkAsRead(commandContext(cmd), id); err != nil {
			return explain(err)
		}
		color.Green("✓ Notification %d marked as read", id)
		return nil
	},
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := api.MarkAllAsRead(commandContext(cmd)); err != nil {
			return explain(err)
		}
		color.Green("✓ All notifications marked as read")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := api.DeleteNotification(commandContext(cmd), id); err != nil {
			return explain(err)
		}
		color.Green("✓ Notification %d deleted", id)
		return nil
	},
}

// watchCmd keeps a session open and redraws the badge and dropdown on every change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow notifications live until Ctrl+C",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		creds, _ := authentication.GetTokens()
		size, _ := cmd.Flags().GetInt("size")

		push := client.NewPushClient(client.PushConfig{
			URL:              settings.WSURL,
			Token:            creds.AccessToken,
			MaxAttempts:      settings.ReconnectAttempts,
			ReconnectDelay:   settings.ReconnectDelay,
			HandshakeTimeout: settings.HandshakeTimeout,
			Logger:           logger,
		})
		session := notify.NewSession(notify.Options{
			PageSize:     settings.PageSize,
			PollInterval: settings.PollInterval,
			Logger:       logger,
		}, nil, api, push)

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		authFailed := make(chan error, 1)
		session.OnAuthError(func(err error) {
			select {
			case authFailed <- err:
			default:
			}
		})

		// the subscriber runs inside the store update; rendering happens here
		changed := make(chan struct{}, 1)
		unsubscribe := session.Subscribe(func(notify.State) {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		if err := session.Activate(ctx); err != nil {
			logger.Warn("initial_refresh_failed", "error", err)
		}
		defer session.Deactivate()

		var badge presenter.Badge
		dropdown := presenter.Dropdown{Size: size}
		render := func() {
			st := session.GetState()
			fmt.Print("\033[H\033[2J")
			fmt.Println(badge.Text(st))
			fmt.Println()
			dropdown.Render(os.Stdout, st)
			color.New(color.Faint).Printf("\nupdated %s · Ctrl+C to quit\n", time.Now().Format("15:04:05"))
		}
		render()

		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case err := <-authFailed:
				return explain(err)
			case <-changed:
				render()
			}
		}
	},
}

func init() {
	notificationsCmd.AddCommand(listCmd, unreadCmd, readCmd, readAllCmd, deleteCmd, watchCmd)

	listCmd.Flags().Bool("unread", false, "only unread notifications")
	listCmd.Flags().Int("skip", 0, "number of notifications to skip")
	listCmd.Flags().Int("limit", 0, "page size (default from config)")

	watchCmd.Flags().Int("size", 5, "notifications shown in the dropdown")
}

// newAPIClient builds the REST client from settings and the stored token
func newAPIClient() (*client.HTTPClient, error) {
	creds, err := authentication.GetTokens()
	if err != nil {
		return nil, err
	}
	if creds.Expired(time.Now()) {
		return nil, fmt.Errorf("stored token expired at %s, run `smsnotify auth login` again",
			time.Unix(creds.ExpiresAt, 0).Format(time.RFC1123))
	}

	api := client.NewHTTPClient(settings.APIURL,
		client.WithTimeout(settings.RequestTimeout),
		client.WithRateLimit(settings.RateLimit, settings.RateBurst),
		client.WithLogger(logger),
	)
	api.SetToken(creds.AccessToken)
	return api, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid notification id %q", arg)
	}
	return id, nil
}

// explain turns transport errors into something a console user can act on
func explain(err error) error {
	switch {
	case client.IsAuthError(err):
		return fmt.Errorf("the server rejected the stored token, run `smsnotify auth login` again (%w)", err)
	case client.KindOf(err) == client.KindValidation:
		return fmt.Errorf("request rejected: %w", err)
	case client.IsRetryable(err):
		return fmt.Errorf("server unreachable, try again later: %w", err)
	}
	return err
}
