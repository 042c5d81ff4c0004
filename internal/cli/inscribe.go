package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/chunk"
	"github.com/chainpress/chainpress/internal/fingerprint"
	"github.com/chainpress/chainpress/internal/ledger"
	"github.com/chainpress/chainpress/internal/outputs"
	"github.com/chainpress/chainpress/internal/publish"
)

// InscribeOptions holds flags for the inscribe command.
type InscribeOptions struct {
	*RootOptions
	Address        string
	FeeRate        int64
	DryRun         bool
	DryRunFunding  int64
	ChunkThreshold int64
}

// InscribeResult is the outcome of a single-file publication.
type InscribeResult struct {
	Path       string `json:"path"`
	TxID       string `json:"txid"`
	AccessPath string `json:"access_path"`
	Size       int64  `json:"size"`
	Chunks     int    `json:"chunks,omitempty"`
	Fee        int64  `json:"fee"`
}

// NewInscribeCommand creates the inscribe command: one file, one
// inscription (or a chunk set plus manifest when oversized), outside
// any deployment.
func NewInscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inscribe <file>",
		Short: "Publish a single file onto the ledger",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInscribe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "address", "", "funding address")
	cmd.Flags().Int64Var(&opts.FeeRate, "fee-rate", 50, "fee rate in base units per 1000 bytes")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "publish against an in-memory ledger")
	cmd.Flags().Int64Var(&opts.DryRunFunding, "dry-run-funding", 100_000_000, "dry-run ledger funding")
	cmd.Flags().Int64Var(&opts.ChunkThreshold, "chunk-threshold", chunk.DefaultThreshold, "size above which the file is split")

	return cmd
}

func runInscribe(opts *InscribeOptions, file string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if !opts.DryRun {
		return formatter.Fail(ExitCommandError, ErrCodeLedger,
			errors.New("no live indexer is configured; use --dry-run"))
	}
	address := opts.Address
	if address == "" {
		address = "dry-run"
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeAnalyze, err)
	}
	if len(data) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeAnalyze,
			fmt.Errorf("%s is empty, nothing to inscribe", file))
	}

	path := fingerprint.NormalizePath(filepath.Base(file))
	unit := &analyze.ContentUnit{
		Path:        path,
		AbsPath:     file,
		MIME:        analyze.MIMEForPath(path),
		Fingerprint: fingerprint.Content(data),
		Size:        int64(len(data)),
	}

	idx := ledger.NewDryRun(address, opts.DryRunFunding)
	ctrl := outputs.NewController(idx, address)
	if err := ctrl.Refresh(cmd.Context()); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeLedger, err)
	}

	job := publish.Job{Unit: unit}
	if plan := chunk.Split(unit, data, false, opts.ChunkThreshold); plan != nil {
		job.Chunks = plan
		if _, _, err := ctrl.PreSplit(cmd.Context(), len(plan.Payloads)+2, splitValue(opts.FeeRate, plan), opts.FeeRate); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeLedger, err)
		}
	} else {
		job.Payload = data
	}

	exec := &publish.Executor{
		Controller: ctrl,
		Indexer:    idx,
		Address:    address,
		FeeRate:    opts.FeeRate,
		Policy:     publish.DefaultPolicy,
		RunToken:   uuid.Must(uuid.NewV7()).String(),
	}

	res, err := exec.PublishWave(cmd.Context(), []publish.Job{job}, publish.NewAccessMap())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodePublish, err)
	}

	u := res.Units[0]
	result := InscribeResult{
		Path:       u.Path,
		TxID:       u.TxID,
		AccessPath: u.AccessPath,
		Size:       u.Size,
		Chunks:     u.ChunkCount,
		Fee:        res.Fees,
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}

	if result.Chunks > 0 {
		fmt.Fprintf(formatter.Writer, "inscribed %s in %d chunk(s)\n", result.Path, result.Chunks)
	} else {
		fmt.Fprintf(formatter.Writer, "inscribed %s\n", result.Path)
	}
	fmt.Fprintf(formatter.Writer, "access path: %s (fee %d)\n", result.AccessPath, result.Fee)
	return nil
}

// splitValue sizes pre-split outputs to cover the largest chunk plus
// fee headroom.
func splitValue(feeRate int64, plan *chunk.Plan) int64 {
	maxLen := 0
	for _, p := range plan.Payloads {
		maxLen = max(maxLen, len(p))
	}
	return feeRate*int64(maxLen+2048)/1000 + 3*ledger.DustLimit + 2048
}
