package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/deploy"
	"github.com/chainpress/chainpress/internal/ledger"
	"github.com/chainpress/chainpress/internal/manifest"
	"github.com/chainpress/chainpress/internal/waves"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	ConfigPath string
	deploy.Config
}

// DeployReport is the JSON payload of a successful deploy: the
// persisted record plus the computed wave plan.
type DeployReport struct {
	Record *manifest.DeploymentRecord `json:"record"`
	Waves  [][]string                 `json:"waves"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy [build-dir]",
		Short: "Publish a built site onto the ledger",
		Long: `Analyze the build directory, publish changed files as inscriptions
in dependency order, rewrite internal references to content addresses,
and write the deployment record. Unchanged files are reused from the
previous deployment at no cost.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.BuildDir = args[0]
			}
			return runDeploy(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default chainpress.yaml if present)")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "entry document (default index.html)")
	cmd.Flags().StringVar(&opts.Address, "address", "", "funding address")
	cmd.Flags().Int64Var(&opts.FeeRate, "fee-rate", 0, "fee rate in base units per 1000 bytes")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "run the full pipeline against an in-memory ledger")
	cmd.Flags().Int64Var(&opts.ChunkThreshold, "chunk-threshold", 0, "size above which files are split")
	cmd.Flags().IntVar(&opts.ChunkBatch, "chunk-batch", 0, "concurrent chunk publishes per unit")
	cmd.Flags().StringVar(&opts.GatewayPrefix, "gateway", "", "content gateway prefix for rewritten references")
	cmd.Flags().StringVar(&opts.VersionTag, "tag", "", "append a release entry with this tag")
	cmd.Flags().StringVar(&opts.VersionDescription, "description", "", "release description (requires --tag)")

	return cmd
}

// resolveConfig layers flag values over the optional config file.
func resolveConfig(opts *DeployOptions, cmd *cobra.Command) (*deploy.Config, error) {
	cfg := &deploy.Config{}
	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(deploy.DefaultConfigFile); err == nil {
			path = deploy.DefaultConfigFile
		}
	}
	if path != "" {
		loaded, err := deploy.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if opts.BuildDir != "" {
		cfg.BuildDir = opts.BuildDir
	}
	if flags.Changed("entry") {
		cfg.Entry = opts.Entry
	}
	if flags.Changed("address") {
		cfg.Address = opts.Address
	}
	if flags.Changed("fee-rate") {
		cfg.FeeRate = opts.FeeRate
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.DryRun
	}
	if flags.Changed("chunk-threshold") {
		cfg.ChunkThreshold = opts.ChunkThreshold
	}
	if flags.Changed("chunk-batch") {
		cfg.ChunkBatch = opts.ChunkBatch
	}
	if flags.Changed("gateway") {
		cfg.GatewayPrefix = opts.GatewayPrefix
	}
	if flags.Changed("tag") {
		cfg.VersionTag = opts.VersionTag
	}
	if flags.Changed("description") {
		cfg.VersionDescription = opts.VersionDescription
	}

	if cfg.DryRun && cfg.Address == "" {
		cfg.Address = "dry-run"
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func runDeploy(opts *DeployOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	idx, err := buildIndexer(cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLedger, err)
	}

	o := deploy.New(cfg, idx)
	var wavePlan [][]string
	o.Hooks = deploy.Hooks{
		AnalysisDone: func(units int, warnings []analyze.Warning) {
			formatter.Verbosef("analyzed %d unit(s), %d warning(s)", units, len(warnings))
			for _, w := range warnings {
				formatter.Verbosef("  warning: %s", w)
			}
		},
		PlanReady: func(p *waves.Plan) {
			wavePlan = p.Waves
			formatter.Progressf("scheduled %d unit(s) across %d wave(s)", p.UnitCount(), p.WaveCount())
		},
		WaveStarted: func(wave, total, publishing, cached int) {
			formatter.Progressf("wave %d/%d: publishing %d, reusing %d", wave+1, total, publishing, cached)
		},
		UnitPublished: func(path, accessPath string) {
			formatter.Verbosef("  published %s -> %s", path, accessPath)
		},
		UnitCached: func(path, accessPath string) {
			formatter.Verbosef("  reused    %s -> %s", path, accessPath)
		},
		ChunkPublished: func(path string, index, total int) {
			formatter.Verbosef("  chunk %d/%d of %s", index+1, total, path)
		},
		RecordWritten: func(path string) {
			formatter.Verbosef("record written to %s", path)
		},
	}

	rec, err := o.Deploy(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodePublish, err)
	}

	if formatter.JSON() {
		return formatter.Success(DeployReport{Record: rec, Waves: wavePlan})
	}
	printDeploySummary(formatter, rec)
	return nil
}

// buildIndexer selects the ledger backend. Only the dry-run ledger is
// bundled; live indexer endpoints are configured out of band.
func buildIndexer(cfg *deploy.Config) (ledger.Indexer, error) {
	if !cfg.DryRun {
		return nil, errors.New("no live indexer is configured; use --dry-run")
	}
	return ledger.NewDryRun(cfg.Address, cfg.DryRunFunding), nil
}

func printDeploySummary(f *OutputFormatter, rec *manifest.DeploymentRecord) {
	cached := 0
	for _, u := range rec.Units {
		if u.Cached {
			cached++
		}
	}
	fmt.Fprintf(f.Writer, "deployed %d unit(s): %d published, %d reused\n",
		len(rec.Units), len(rec.Units)-cached, cached)
	fmt.Fprintf(f.Writer, "transactions: %d, new bytes: %d, fee: %d\n",
		rec.NewTxCount, rec.NewBytes, rec.TotalFee)
	if entry, ok := rec.UnitByPath()[rec.Entry]; ok {
		fmt.Fprintf(f.Writer, "entry: %s\n", entry.AccessPath)
	}
	if rec.VersionTxID != "" {
		fmt.Fprintf(f.Writer, "release %s: %s\n", rec.VersionTag, rec.VersionTxID)
	}
}
