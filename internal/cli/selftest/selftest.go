// Package selftest checks a running server end to end: uploads, downloads,
// the metadata-only projection, region validation and range reconstruction.
package selftest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// Client is the part of the server API the checks exercise.
type Client interface {
	UploadState(ctx context.Context, state *domain.SystemState) (domain.Token, error)
	DownloadState(ctx context.Context, tok domain.Token, excludeMemoryData bool) (*domain.SystemState, error)
	DownloadRange(ctx context.Context, tok domain.Token, start, length int64) ([]byte, error)
}

// Check is one named end-to-end check.
type Check struct {
	Name string
	Run  func(ctx context.Context, c Client, rng *rand.Rand) error
}

// Result is the outcome of one check.
type Result struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report collects the results of a run.
type Report struct {
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Checks returns the standard checks in run order.
func Checks() []Check {
	return []Check{
		{Name: "upload-download", Run: checkUploadDownload},
		{Name: "exclude-memory-data", Run: checkExcludeMemoryData},
		{Name: "reject-bad-region", Run: checkRejectBadRegion},
		{Name: "memory-ranges", Run: checkMemoryRanges},
	}
}

// Run executes checks in order. A failing check does not stop the run.
// seed makes the generated states reproducible.
func Run(ctx context.Context, c Client, checks []Check, seed uint64) *Report {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	report := &Report{}
	for _, chk := range checks {
		start := time.Now()
		err := chk.Run(ctx, c, rng)
		res := Result{Name: chk.Name, Passed: err == nil, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
			report.Failed++
		} else {
			report.Passed++
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// RandomState builds a MODEL_III state with fixed registers and ten random
// 32000-byte regions at random starts below 32000.
func RandomState(rng *rand.Rand) *domain.SystemState {
	s := &domain.SystemState{
		Model: domain.ModelIII,
		Registers: domain.Registers{
			IX: 9, IY: 7, PC: 5, SP: 3, AF: 1, BC: 2, DE: 4, HL: 6,
			AFPrime: 100, BCPrime: 80, DEPrime: 42, HLPrime: 23,
			I: 11, R1: 22, R2: 200,
		},
	}
	for i := 0; i < 10; i++ {
		data := make([]byte, 32000)
		for j := range data {
			data[j] = byte(rng.IntN(128))
		}
		s.MemoryRegions = append(s.MemoryRegions, domain.MemoryRegion{
			Start:  int64(rng.IntN(32000)),
			Length: int64(len(data)),
			Data:   data,
		})
	}
	return s
}

func upload(ctx context.Context, c Client, s *domain.SystemState) (domain.Token, error) {
	tok, err := c.UploadState(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	if !tok.Valid() {
		return 0, fmt.Errorf("upload returned non-positive token %d", tok)
	}
	return tok, nil
}

func checkUploadDownload(ctx context.Context, c Client, rng *rand.Rand) error {
	want := RandomState(rng)
	tok, err := upload(ctx, c, want)
	if err != nil {
		return err
	}
	got, err := c.DownloadState(ctx, tok, false)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if err := equalStates(got, want); err != nil {
		return fmt.Errorf("downloaded state differs: %w", err)
	}
	return nil
}

func checkExcludeMemoryData(ctx context.Context, c Client, rng *rand.Rand) error {
	up := RandomState(rng)
	tok, err := upload(ctx, c, up)
	if err != nil {
		return err
	}
	got, err := c.DownloadState(ctx, tok, true)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if len(got.MemoryRegions) != len(up.MemoryRegions) {
		return fmt.Errorf("got %d regions, want %d", len(got.MemoryRegions), len(up.MemoryRegions))
	}
	for i, r := range got.MemoryRegions {
		if len(r.Data) > 0 {
			return fmt.Errorf("region %d carries %d data bytes", i, len(r.Data))
		}
		if r.Start != up.MemoryRegions[i].Start || r.Length != up.MemoryRegions[i].Length {
			return fmt.Errorf("region %d is %d+%d, want %d+%d", i, r.Start, r.Length,
				up.MemoryRegions[i].Start, up.MemoryRegions[i].Length)
		}
	}
	return nil
}

func checkRejectBadRegion(ctx context.Context, c Client, rng *rand.Rand) error {
	s := RandomState(rng)
	bad := s.MemoryRegions[0].Clone()
	bad.Start = -10
	s.MemoryRegions = append(s.MemoryRegions, bad)

	tok, err := c.UploadState(ctx, s)
	if err == nil {
		return fmt.Errorf("upload with negative start was accepted as token %d", tok)
	}
	return nil
}

// rangeCase is one ranged read against rangeState.
type rangeCase struct {
	start, length int64
	want          []byte
}

func rangeState() *domain.SystemState {
	return &domain.SystemState{
		Model: domain.ModelIII,
		MemoryRegions: []domain.MemoryRegion{
			{Start: 1000, Length: 4, Data: []byte{42, 43, 44, 45}},
			{Start: 1100, Length: 8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			{Start: 1108, Length: 6, Data: []byte{11, 22, 33, 44, 55, 66}},
			{Start: 1120, Length: 5, Data: []byte{101, 102, 103, 104, 105}},
		},
	}
}

var rangeCases = []rangeCase{
	{1000, 4, []byte{42, 43, 44, 45}},
	{1108, 6, []byte{11, 22, 33, 44, 55, 66}},
	{1100, 14, []byte{1, 2, 3, 4, 5, 6, 7, 8, 11, 22, 33, 44, 55, 66}},
	{998, 8, []byte{0, 0, 42, 43, 44, 45, 0, 0}},
	{1002, 4, []byte{44, 45, 0, 0}},
	{1111, 12, []byte{44, 55, 66, 0, 0, 0, 0, 0, 0, 101, 102, 103}},
	{1122, 2, []byte{103, 104}},
}

func checkMemoryRanges(ctx context.Context, c Client, _ *rand.Rand) error {
	tok, err := upload(ctx, c, rangeState())
	if err != nil {
		return err
	}
	var errs []error
	for i, rc := range rangeCases {
		got, err := c.DownloadRange(ctx, tok, rc.start, rc.length)
		if err != nil {
			errs = append(errs, fmt.Errorf("#%d range %d+%d: %w", i+1, rc.start, rc.length, err))
			continue
		}
		if !bytes.Equal(got, rc.want) {
			errs = append(errs, fmt.Errorf("#%d range %d+%d = %v, want %v", i+1, rc.start, rc.length, got, rc.want))
		}
	}
	return errors.Join(errs...)
}

func equalStates(got, want *domain.SystemState) error {
	if got.Model != want.Model {
		return fmt.Errorf("model %s, want %s", got.Model, want.Model)
	}
	if got.Registers != want.Registers {
		return fmt.Errorf("registers %+v, want %+v", got.Registers, want.Registers)
	}
	if len(got.MemoryRegions) != len(want.MemoryRegions) {
		return fmt.Errorf("%d regions, want %d", len(got.MemoryRegions), len(want.MemoryRegions))
	}
	for i := range want.MemoryRegions {
		g, w := got.MemoryRegions[i], want.MemoryRegions[i]
		if g.Start != w.Start || g.Length != w.Length || !bytes.Equal(g.Data, w.Data) {
			return fmt.Errorf("region %d differs", i)
		}
	}
	return nil
}
