package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"sakay-eta/internal/config"
	"sakay-eta/internal/display"
	"sakay-eta/internal/poller"
)

func boardCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "board",
		Usage: "print the live ETA board to the terminal",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "every",
				Value: time.Second,
				Usage: "redraw interval; estimates only change on refresh",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			e, err := buildEngine(ctx, cfg, nil, false)
			if err != nil {
				return err
			}
			defer e.Close()

			go func() { _ = e.poller.Run(ctx) }()

			tick := time.NewTicker(c.Duration("every"))
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.Canceled) {
						return nil
					}
					return ctx.Err()
				case now := <-tick.C:
					renderBoard(os.Stdout, e.poller.Snapshot(), now, cfg.Location)
				}
			}
		},
	}
}

func renderBoard(w io.Writer, snap poller.Snapshot, now time.Time, loc *time.Location) {
	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	status := "OPEN"
	if snap.Board.Closed {
		status = "CLOSED"
	}
	fmt.Fprintf(&b, "%s  service %s  traffic %s\n", now.In(loc).Format("3:04:05 PM"), status, snap.Status.Tier)
	for _, r := range snap.Board.Routes {
		fmt.Fprintf(&b, "\n%s\n", r.RouteName)
		for _, st := range r.Stops {
			fmt.Fprintf(&b, "  %-20s %8s  %s\n", st.StopName, display.Clock(st.ArrivalTimestamp, loc), display.Countdown(st.ArrivalTimestamp, now))
		}
	}
	if len(snap.Notifications) > 0 {
		b.WriteString("\nNotifications\n")
		for _, n := range snap.Notifications {
			fmt.Fprintf(&b, "  %s  %s\n", n.CreatedAt.In(loc).Format("3:04 PM"), strings.ReplaceAll(n.Message, "\n", " | "))
		}
	}
	if snap.Status.FeedError != "" {
		fmt.Fprintf(&b, "\nfeed: %s\n", snap.Status.FeedError)
	}
	_, _ = io.WriteString(w, b.String())
}
