package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chainpress/chainpress/internal/chunk"
)

// DefaultConfigFile is looked up next to the build directory's parent
// when no --config flag is given.
const DefaultConfigFile = "chainpress.yaml"

// Config is the full deployment configuration. Values come from the
// optional YAML config file, overridden by CLI flags.
type Config struct {
	// BuildDir is the directory holding the built site.
	BuildDir string `yaml:"build_dir"`

	// Entry is the entry document, build-root-relative.
	Entry string `yaml:"entry"`

	// Project names the site in the deployment history.
	Project string `yaml:"project"`

	// Address is the funding address whose outputs pay for
	// inscriptions.
	Address string `yaml:"address"`

	// FeeRate is in base units per 1000 envelope bytes.
	FeeRate int64 `yaml:"fee_rate"`

	// DryRun publishes against an in-memory ledger: full pipeline,
	// fabricated txids, nothing broadcast.
	DryRun bool `yaml:"dry_run"`

	// DryRunFunding seeds the dry-run ledger.
	DryRunFunding int64 `yaml:"dry_run_funding"`

	// ChunkThreshold is the size above which files are split. The
	// entry document is exempt.
	ChunkThreshold int64 `yaml:"chunk_threshold"`

	// ChunkBatch bounds concurrent chunk publishes per unit.
	ChunkBatch int `yaml:"chunk_batch"`

	// GatewayPrefix is prepended to access paths when rewriting
	// references, e.g. "/content/".
	GatewayPrefix string `yaml:"gateway_prefix"`

	// VersionTag, when set, appends an entry to the release chain.
	VersionTag         string `yaml:"version_tag"`
	VersionDescription string `yaml:"version_description"`

	// State files. Paths are used as given.
	RecordPath  string `yaml:"record_path"`
	HistoryPath string `yaml:"history_path"`
	JournalPath string `yaml:"journal_path"`
}

// LoadConfig reads a YAML config file. Unknown keys are errors so a
// typoed key fails loudly instead of silently using a default.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. State files default to a
// .chainpress directory next to the build directory.
func (c *Config) ApplyDefaults() {
	if c.Entry == "" {
		c.Entry = "index.html"
	}
	if c.FeeRate == 0 {
		c.FeeRate = 50
	}
	if c.DryRunFunding == 0 {
		c.DryRunFunding = 100_000_000
	}
	if c.ChunkThreshold == 0 {
		c.ChunkThreshold = chunk.DefaultThreshold
	}
	if c.GatewayPrefix == "" {
		c.GatewayPrefix = "/content/"
	}

	stateDir := ".chainpress"
	if c.BuildDir != "" {
		stateDir = filepath.Join(filepath.Dir(filepath.Clean(c.BuildDir)), ".chainpress")
	}
	if c.RecordPath == "" {
		c.RecordPath = filepath.Join(stateDir, "deploy.json")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(stateDir, "history.json")
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(stateDir, "journal.db")
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BuildDir == "" {
		errs = append(errs, errors.New("build directory is required"))
	}
	if c.Entry == "" {
		errs = append(errs, errors.New("entry document is required"))
	}
	if c.Address == "" && !c.DryRun {
		errs = append(errs, errors.New("funding address is required outside dry-run"))
	}
	if c.FeeRate <= 0 {
		errs = append(errs, fmt.Errorf("fee rate must be positive, got %d", c.FeeRate))
	}
	if c.ChunkThreshold <= 0 {
		errs = append(errs, fmt.Errorf("chunk threshold must be positive, got %d", c.ChunkThreshold))
	}
	if c.ChunkBatch < 0 {
		errs = append(errs, fmt.Errorf("chunk batch must not be negative, got %d", c.ChunkBatch))
	}
	if c.VersionDescription != "" && c.VersionTag == "" {
		errs = append(errs, errors.New("version description requires a version tag"))
	}
	return errors.Join(errs...)
}
