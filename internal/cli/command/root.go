package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/retrostate-go/internal/cli/config"
	"github.com/yndnr/retrostate-go/internal/cli/connection"
	"github.com/yndnr/retrostate-go/internal/cli/output"
	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
	"github.com/yndnr/retrostate-go/internal/infra/tlsroots"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "retrostate-cli",
		Usage:   "RetroState snapshot store command-line tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StateCommand(),
			SystemCommand(),
		},
		Before: func(c *cli.Context) error {
			if err := applyProfile(c); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "RetroState server address (e.g., localhost:5080 or https://host:5443)",
			EnvVars: []string{"RETROSTATE_SERVER"},
			Value:   "localhost:5080",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{"RETROSTATE_OUTPUT"},
			Value:   "table",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI profile supplying flag defaults",
			EnvVars: []string{"RETROSTATE_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle trusted in addition to the system roots",
			EnvVars: []string{"RETROSTATE_CA_FILE"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
			Value: 60 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// applyProfile fills global flags left unset by the command line and the
// environment from the CLI profile.
func applyProfile(c *cli.Context) error {
	profile, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load CLI profile: %w", err)
	}
	for name, value := range profile.Defaults() {
		if c.IsSet(name) {
			continue
		}
		if err := c.Set(name, value); err != nil {
			return fmt.Errorf("CLI profile %s: %w", name, err)
		}
	}
	return nil
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server  string
	Output  output.Format
	CAFile  string
	Timeout time.Duration
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		format = output.FormatTable
	}
	return &GlobalFlags{
		Server:  c.String("server"),
		Output:  format,
		CAFile:  c.String("ca-file"),
		Timeout: c.Duration("timeout"),
		Verbose: c.Bool("verbose"),
	}
}

// EnsureConnected returns an HTTP client for the configured server.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)

	opts := []connection.ClientOption{}
	if flags.Timeout > 0 {
		opts = append(opts, connection.WithTimeout(flags.Timeout))
	}
	if flags.CAFile != "" {
		pool, err := tlsroots.LoadPool(flags.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load CA file: %w", err)
		}
		opts = append(opts, connection.WithTLSConfig(pool.ClientConfig()))
	}

	client := connection.NewHTTPClient(flags.Server, opts...)
	if flags.Verbose {
		fmt.Fprintf(errWriter(c), "server: %s\n", client.BaseURL())
	}
	return client, nil
}

// commandContext returns a context bounded by the --timeout flag.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	return output.NewFormatter(ParseGlobalFlags(c).Output).Format(outWriter(c), data)
}

func outWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
