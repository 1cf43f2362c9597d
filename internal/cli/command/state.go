package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	statev1 "github.com/yndnr/retrostate-go/api/proto/v1"
	"github.com/yndnr/retrostate-go/internal/cli/output"
	"github.com/yndnr/retrostate-go/internal/cli/selftest"
	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// StateCommand returns the state subcommand group.
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:    "state",
		Aliases: []string{"st"},
		Usage:   "Upload and inspect system states",
		Subcommands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload a state from a JSON or .pb file",
				ArgsUsage: "FILE",
				Action:    stateUpload,
			},
			{
				Name:      "download",
				Usage:     "Download a state",
				ArgsUsage: "TOKEN",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "exclude-memory-data",
						Usage: "Return region addresses and lengths without data",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write the state to a file (.pb for protobuf, JSON otherwise)",
					},
				},
				Action: stateDownload,
			},
			{
				Name:      "range",
				Usage:     "Read a range of reconstructed memory",
				ArgsUsage: "TOKEN",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "start",
						Usage:    "First address to read (may be negative)",
						Required: true,
					},
					&cli.Int64Flag{
						Name:     "length",
						Usage:    "Number of bytes to read",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write the raw bytes to a file",
					},
				},
				Action: stateRange,
			},
			{
				Name:  "selftest",
				Usage: "Run end-to-end checks against the server",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "seed",
						Usage: "Seed for generated states (default: current time)",
					},
				},
				Action: stateSelftest,
			},
		},
	}
}

// stateSummary is the printable form of a downloaded state.
type stateSummary struct {
	Token         string           `json:"token"`
	Model         string           `json:"model"`
	Registers     domain.Registers `json:"registers"`
	Regions       int              `json:"regions"`
	DataBytes     int64            `json:"data_bytes"`
	MemoryRegions []regionSummary  `json:"memory_regions" table:"-"`
}

type regionSummary struct {
	Start  int64 `json:"start"`
	Length int64 `json:"length"`
}

type uploadResult struct {
	Token     string `json:"token"`
	Regions   int    `json:"regions"`
	DataBytes int64  `json:"data_bytes"`
}

type rangeResult struct {
	Token  string `json:"token"`
	Start  int64  `json:"start"`
	Length int64  `json:"length"`
	Data   []byte `json:"data"`
}

func tokenArg(c *cli.Context) (domain.Token, error) {
	if c.NArg() != 1 {
		return 0, cli.Exit("exactly one TOKEN argument is required", 2)
	}
	tok, err := domain.ParseToken(c.Args().First())
	if err != nil {
		return 0, cli.Exit(err.Error(), 2)
	}
	return tok, nil
}

// readStateFile loads a state from path. Files ending in .pb hold the
// protobuf encoding; anything else is JSON.
func readStateFile(path string) (*domain.SystemState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isProtoFile(path) {
		return statev1.UnmarshalState(raw)
	}
	var s domain.SystemState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}

func writeStateFile(path string, s *domain.SystemState) error {
	var data []byte
	if isProtoFile(path) {
		data = statev1.MarshalState(s)
	} else {
		var err error
		if data, err = json.MarshalIndent(s, "", "  "); err != nil {
			return err
		}
		data = append(data, '\n')
	}
	return os.WriteFile(path, data, 0o644)
}

func isProtoFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pb")
}

func stateUpload(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one FILE argument is required", 2)
	}
	state, err := readStateFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return err
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	tok, err := client.UploadState(ctx, state)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return render(c, uploadResult{
		Token:     tok.String(),
		Regions:   len(state.MemoryRegions),
		DataBytes: state.DataSize(),
	})
}

func stateDownload(c *cli.Context) error {
	tok, err := tokenArg(c)
	if err != nil {
		return err
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	state, err := client.DownloadState(ctx, tok, c.Bool("exclude-memory-data"))
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	if out := c.String("out"); out != "" {
		if err := writeStateFile(out, state); err != nil {
			return fmt.Errorf("write state: %w", err)
		}
		fmt.Fprintf(errWriter(c), "wrote %d regions to %s\n", len(state.MemoryRegions), out)
		return nil
	}

	summary := stateSummary{
		Token:     tok.String(),
		Model:     state.Model.String(),
		Registers: state.Registers,
		Regions:   len(state.MemoryRegions),
		DataBytes: state.DataSize(),
	}
	for _, r := range state.MemoryRegions {
		summary.MemoryRegions = append(summary.MemoryRegions, regionSummary{Start: r.Start, Length: r.Length})
	}
	if err := render(c, summary); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable && len(summary.MemoryRegions) > 0 {
		fmt.Fprintln(outWriter(c))
		return render(c, summary.MemoryRegions)
	}
	return nil
}

func stateRange(c *cli.Context) error {
	tok, err := tokenArg(c)
	if err != nil {
		return err
	}
	start, length := c.Int64("start"), c.Int64("length")
	if length < 0 {
		return cli.Exit(fmt.Sprintf("length %d is negative", length), 2)
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	data, err := client.DownloadRange(ctx, tok, start, length)
	if err != nil {
		return fmt.Errorf("range read failed: %w", err)
	}

	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write range: %w", err)
		}
		fmt.Fprintf(errWriter(c), "wrote %d bytes to %s\n", len(data), out)
		return nil
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		return output.HexDump(outWriter(c), start, data)
	}
	return render(c, rangeResult{Token: tok.String(), Start: start, Length: length, Data: data})
}

func stateSelftest(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	seed := c.Uint64("seed")
	if !c.IsSet("seed") {
		seed = uint64(time.Now().UnixNano())
	}
	report := selftest.Run(ctx, client, selftest.Checks(), seed)

	if ParseGlobalFlags(c).Output == output.FormatTable {
		w := outWriter(c)
		for _, r := range report.Results {
			mark := "PASS"
			if !r.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(w, "%s  %-22s %s\n", mark, r.Name, r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				for _, line := range strings.Split(r.Error, "\n") {
					fmt.Fprintf(w, "      %s\n", line)
				}
			}
		}
		fmt.Fprintf(w, "\n%d passed, %d failed (seed %d)\n", report.Passed, report.Failed, seed)
	} else if err := render(c, report); err != nil {
		return err
	}

	if !report.OK() {
		return cli.Exit("selftest failed", 1)
	}
	return nil
}
