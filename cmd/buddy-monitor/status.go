package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"buddy-monitor/internal/health"
)

func statusCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running monitor",
		Long:  `Run every check of a running monitor and print the results. Exits non-zero when the service is unhealthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			overall, err := fetchHealth(ctx, addr)
			if err != nil {
				return err
			}

			printStatus(cmd.OutOrStdout(), overall)

			if overall.Status == health.StatusUnhealthy {
				return fmt.Errorf("service %s is unhealthy", overall.ServiceName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the monitor")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	return cmd
}

func fetchHealth(ctx context.Context, addr string) (health.OverallHealth, error) {
	var overall health.OverallHealth

	url := strings.TrimSuffix(addr, "/") + "/health/detailed"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return overall, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return overall, fmt.Errorf("failed to reach monitor at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	// 503 still carries the health document
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return overall, fmt.Errorf("unexpected response from %s: %s", url, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&overall); err != nil {
		return overall, fmt.Errorf("failed to decode health response: %w", err)
	}
	return overall, nil
}

func printStatus(out io.Writer, overall health.OverallHealth) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "\n%s\n\n", cyan(fmt.Sprintf("=== %s ===", overall.ServiceName)))
	fmt.Fprintf(out, "Status:  %s\n", statusColor(overall.Status)(string(overall.Status)))
	fmt.Fprintf(out, "Summary: %s\n", overall.Summary)
	fmt.Fprintf(out, "Uptime:  %s\n", overall.Uptime.Round(time.Second))
	if overall.Version != "" {
		fmt.Fprintf(out, "Version: %s\n", overall.Version)
	}
	fmt.Fprintln(out)

	names := make([]string, 0, len(overall.Checks))
	for name := range overall.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reading := overall.Checks[name]
		status := reading.Status()

		icon := "●"
		if status != health.StatusHealthy {
			icon = "✗"
		}

		line := fmt.Sprintf("  %s %-16s %s", statusColor(status)(icon), name, reading.Message)
		if reading.Error != "" {
			line += " " + gray("("+reading.Error+")")
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}

func statusColor(status health.Status) func(a ...interface{}) string {
	switch status {
	case health.StatusHealthy:
		return color.New(color.FgGreen).SprintFunc()
	case health.StatusDegraded:
		return color.New(color.FgYellow).SprintFunc()
	case health.StatusUnhealthy:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}
