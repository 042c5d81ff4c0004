package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainpress/chainpress/internal/deploy"
	"github.com/chainpress/chainpress/internal/manifest"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	HistoryPath string
	Limit       int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [build-dir]",
		Short: "Show the deployment history",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			buildDir := ""
			if len(args) == 1 {
				buildDir = args[0]
			}
			return runHistory(opts, buildDir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HistoryPath, "history", "", "history file (default derived from the build directory)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the most recent N deployments")

	return cmd
}

func runHistory(opts *HistoryOptions, buildDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	path := opts.HistoryPath
	if path == "" {
		cfg := &deploy.Config{BuildDir: buildDir}
		cfg.ApplyDefaults()
		path = cfg.HistoryPath
	}

	h, err := manifest.LoadHistory(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeState, err)
	}

	deployments := h.Deployments
	if opts.Limit > 0 && len(deployments) > opts.Limit {
		deployments = deployments[len(deployments)-opts.Limit:]
	}

	if formatter.JSON() {
		trimmed := *h
		trimmed.Deployments = deployments
		return formatter.Success(trimmed)
	}

	if len(deployments) == 0 {
		fmt.Fprintln(formatter.Writer, "no deployments recorded")
		return nil
	}
	if h.Project != "" {
		fmt.Fprintf(formatter.Writer, "project: %s\n", h.Project)
	}
	if h.ChainOrigin != "" {
		fmt.Fprintf(formatter.Writer, "release chain origin: %s\n", h.ChainOrigin)
	}
	for _, d := range deployments {
		status := "ok"
		if d.Aborted {
			status = "aborted"
		}
		tag := d.VersionTag
		if tag == "" {
			tag = "-"
		}
		fmt.Fprintf(formatter.Writer, "%s  %-8s  %-10s  units=%d new_txs=%d fee=%d\n",
			d.Timestamp.Format("2006-01-02 15:04:05"), status, tag,
			len(d.Units), d.NewTxCount, d.TotalFee)
	}
	return nil
}
