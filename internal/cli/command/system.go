package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/retrostate-go/internal/cli/output"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "System management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show system status summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server health",
				Action: systemHealth,
			},
			{
				Name:   "gc",
				Usage:  "Remove expired states now",
				Action: systemGC,
			},
		},
	}
}

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

type statusSummary struct {
	Status         string    `json:"status"`
	Build          buildInfo `json:"build"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	States         int64     `json:"states"`
	StateBytes     int64     `json:"state_bytes"`
	StateTTL       string    `json:"state_ttl"`
	MaxStateBytes  int64     `json:"max_state_bytes"`
	MaxRangeLength int64     `json:"max_range_length"`
}

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
	Time    string `json:"time"`
}

type gcResult struct {
	CleanedCount int    `json:"cleaned_count"`
	TriggeredAt  string `json:"triggered_at"`
}

func systemStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var result statusSummary
	if err := client.GetJSON(ctx, "/admin/v1/status/summary", &result); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return render(c, result)
}

func systemHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var result healthStatus
	if err := client.GetJSON(ctx, "/health", &result); err != nil {
		return cli.Exit(fmt.Sprintf("server unhealthy: %v", err), 1)
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result)
	}
	w := outWriter(c)
	if result.Status == "healthy" {
		fmt.Fprintf(w, "✓ Server is healthy\n")
	} else {
		fmt.Fprintf(w, "✗ Server is unhealthy: %s\n", result.Status)
	}
	fmt.Fprintf(w, "  Target:  %s\n", client.BaseURL())
	if result.Version != "" {
		fmt.Fprintf(w, "  Version: %s (%s)\n", result.Version, result.Commit)
	}
	return nil
}

func systemGC(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var result gcResult
	if err := client.PostJSON(ctx, "/admin/v1/gc/trigger", nil, &result); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return render(c, result)
}
