package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhjames1/peerchat/pkg/client"
	"github.com/jhjames1/peerchat/pkg/models"
)

var (
	watchServer      string
	watchEmail       string
	watchPasswordEnv string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log in as a specialist and print the waiting list as it changes",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", getEnv("PEERCHAT_URL", "http://localhost:8080"), "peerchat base URL")
	watchCmd.Flags().StringVar(&watchEmail, "email", os.Getenv("PEERCHAT_EMAIL"), "specialist email")
	watchCmd.Flags().StringVar(&watchPasswordEnv, "password-env", "PEERCHAT_PASSWORD", "environment variable holding the password")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewAPIClient(watchServer)
	sp, err := api.SpecialistLogin(ctx, watchEmail, os.Getenv(watchPasswordEnv))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	slog.Info("Logged in", "specialist_id", sp.ID, "display_name", sp.DisplayName)

	out := cmd.OutOrStdout()
	waiting := client.NewWaitingList(api, func(sessions []*models.ChatSession) {
		printWaiting(out, sessions)
	})

	var (
		mu      sync.Mutex
		feed    client.FeedConn
		gen     int
		monitor *client.Monitor
	)
	connect := func(ctx context.Context) error {
		mu.Lock()
		gen++
		myGen := gen
		mu.Unlock()

		conn, err := waiting.Watch(ctx, client.DialFeed, api.FeedURL(), func(st client.FeedStatus, err error) {
			// Reports from a replaced feed are stale.
			mu.Lock()
			current := myGen == gen
			mu.Unlock()
			if current {
				monitor.HandleFeedStatus(st, err)
			}
		})
		if err != nil {
			return err
		}
		mu.Lock()
		old := feed
		feed = conn
		mu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		// The sessions channel has no catch-up; reload after subscribing.
		return waiting.Refresh(ctx)
	}
	monitor = client.NewMonitor(connect)
	defer monitor.Close()

	monitor.OnChange(func(st client.ConnectionStatus) {
		slog.Info("Feed status changed", "status", st.State, "error", st.Error)
	})

	if err := connect(ctx); err != nil {
		return fmt.Errorf("failed to watch waiting list: %w", err)
	}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if feed != nil {
			_ = feed.Close()
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if monitor.Status().IsConnected() {
				continue
			}
			if err := monitor.Reconnect(ctx); err != nil {
				slog.Warn("Reconnect failed", "error", err)
			}
		}
	}
}

func printWaiting(w io.Writer, sessions []*models.ChatSession) {
	_, _ = fmt.Fprintf(w, "%s  %d waiting\n", time.Now().Format(time.TimeOnly), len(sessions))
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "  #%d  %s  waiting %s\n",
			s.SessionNumber, s.ID, time.Since(s.StartedAt).Truncate(time.Second))
	}
}
