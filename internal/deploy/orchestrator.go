// Package deploy runs the full publication pipeline: analyze the
// build, schedule waves, evaluate the cache, rewrite references,
// publish through the output controller, and persist the deployment
// record and history.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/cache"
	"github.com/chainpress/chainpress/internal/chunk"
	"github.com/chainpress/chainpress/internal/fingerprint"
	"github.com/chainpress/chainpress/internal/journal"
	"github.com/chainpress/chainpress/internal/ledger"
	"github.com/chainpress/chainpress/internal/manifest"
	"github.com/chainpress/chainpress/internal/outputs"
	"github.com/chainpress/chainpress/internal/publish"
	"github.com/chainpress/chainpress/internal/version"
	"github.com/chainpress/chainpress/internal/waves"
)

// Orchestrator drives one deployment run.
type Orchestrator struct {
	Config  *Config
	Indexer ledger.Indexer

	// Journal overrides the sqlite journal opened from
	// Config.JournalPath. Mostly a test seam.
	Journal publish.Recorder

	Hooks Hooks

	// Sleep forwards to the publish executor's backoff pause.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. The indexer decides dry-run vs real.
func New(cfg *Config, idx ledger.Indexer) *Orchestrator {
	return &Orchestrator{Config: cfg, Indexer: idx}
}

// Deploy runs the pipeline end to end. On a mid-run failure the
// returned record is still persisted, marked Aborted, with everything
// that did publish; the next run's cache picks it up from there.
func (o *Orchestrator) Deploy(ctx context.Context) (*manifest.DeploymentRecord, error) {
	cfg := o.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	runToken := uuid.Must(uuid.NewV7()).String()
	entry := fingerprint.NormalizePath(cfg.Entry)
	slog.Info("deployment starting", "run", runToken, "build_dir", cfg.BuildDir, "dry_run", cfg.DryRun)

	graph, warnings, err := analyze.Analyze(cfg.BuildDir)
	if err != nil {
		return nil, err
	}
	o.Hooks.analysisDone(graph.Len(), warnings)
	if graph.Node(entry) == nil {
		return nil, fmt.Errorf("entry document %s not found in %s", entry, cfg.BuildDir)
	}

	plan := waves.Compute(graph)
	for _, e := range plan.CycleEdges {
		slog.Warn("dependency cycle broken", "dependent", e[0], "dependency", e[1])
	}
	o.Hooks.planReady(plan)

	history, err := manifest.LoadHistory(cfg.HistoryPath)
	if err != nil {
		// Cache trouble is never fatal; the run just pays full price.
		slog.Warn("prior history unreadable, cache disabled", "error", err)
		history = &manifest.History{SchemaVersion: manifest.HistorySchemaVersion}
	}
	if history.Project == "" {
		history.Project = cfg.Project
	}

	recorder := o.Journal
	var jnl *journal.Journal
	if recorder == nil && cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		recorder = j
		jnl = j
	}

	prior := history.Latest()
	if jnl != nil {
		if merged := recoverFromJournal(ctx, jnl, history); merged != nil {
			prior = merged
		}
	}
	ev := cache.NewEvaluator(prior)

	payloads := make(map[string][]byte, graph.Len())
	chunkPlans := make(map[string]*chunk.Plan)
	for _, p := range graph.Paths() {
		u := graph.Node(p).Unit
		data, err := os.ReadFile(u.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		payloads[p] = data
		if p == entry && int64(len(data)) > cfg.ChunkThreshold {
			// The entry must be fetchable by a plain gateway request,
			// before any reassembly agent is installed, so it cannot
			// be split. Fail here rather than publish an oversized
			// inscription.
			return nil, fmt.Errorf("entry document %s is %d bytes, over the %d byte limit, and cannot be split",
				entry, len(data), cfg.ChunkThreshold)
		}
		if cp := chunk.Split(u, data, p == entry, cfg.ChunkThreshold); cp != nil {
			chunkPlans[p] = cp
		}
	}

	ctrl := outputs.NewController(o.Indexer, cfg.Address)
	if err := ctrl.Refresh(ctx); err != nil {
		return nil, err
	}

	rec := &manifest.DeploymentRecord{
		RunToken:           runToken,
		Timestamp:          time.Now().UTC(),
		Entry:              entry,
		VersionTag:         cfg.VersionTag,
		VersionDescription: cfg.VersionDescription,
	}

	persist := func() error {
		sort.Slice(rec.Units, func(i, j int) bool { return rec.Units[i].Path < rec.Units[j].Path })
		rec.NewTxCount = len(rec.TxIDs)
		if err := manifest.SaveRecord(cfg.RecordPath, rec); err != nil {
			return err
		}
		history.Append(*rec)
		if err := manifest.SaveHistory(cfg.HistoryPath, history); err != nil {
			return err
		}
		o.Hooks.recordWritten(cfg.RecordPath)
		return nil
	}
	abort := func(cause error) (*manifest.DeploymentRecord, error) {
		rec.Aborted = true
		if perr := persist(); perr != nil {
			slog.Error("persisting aborted record failed", "error", perr)
		}
		return rec, cause
	}
	merge := func(res *publish.WaveResult) {
		rec.Units = append(rec.Units, res.Units...)
		rec.TxIDs = append(rec.TxIDs, res.TxIDs...)
		rec.TotalFee += res.Fees
		rec.NewBytes += res.Bytes
	}

	if err := o.preSplit(ctx, ctrl, ev, graph, plan, chunkPlans, payloads, rec, recorder, runToken); err != nil {
		return nil, err
	}

	exec := &publish.Executor{
		Controller: ctrl,
		Indexer:    o.Indexer,
		Address:    cfg.Address,
		FeeRate:    cfg.FeeRate,
		Policy:     publish.DefaultPolicy,
		RunToken:   runToken,
		ChunkBatch: cfg.ChunkBatch,
		Journal:    recorder,
		Events: publish.Events{
			UnitPublished:  o.Hooks.UnitPublished,
			ChunkPublished: o.Hooks.ChunkPublished,
		},
		Sleep: o.Sleep,
	}

	access := publish.NewAccessMap()
	for wi, wave := range plan.Waves {
		var jobs []publish.Job
		cached := 0
		for _, p := range wave {
			node := graph.Node(p)
			deps := graph.Deps(p)

			if pu, ok := ev.Evaluate(node.Unit, deps, access); ok {
				access.Set(p, pu.AccessPath)
				rec.Units = append(rec.Units, pu)
				o.Hooks.unitCached(p, pu.AccessPath)
				cached++
				continue
			}

			job := publish.Job{Unit: node.Unit}
			if cp := chunkPlans[p]; cp != nil {
				job.Chunks = cp
			} else {
				job.Payload = o.rewritten(node.Unit, payloads[p], access)
			}
			if len(deps) > 0 {
				job.DepsFingerprint = fingerprint.Dependencies(deps, access.Snapshot())
			}
			jobs = append(jobs, job)
		}

		o.Hooks.waveStarted(wi, plan.WaveCount(), len(jobs), cached)
		res, err := exec.PublishWave(ctx, jobs, access)
		merge(res)
		if err != nil {
			return abort(fmt.Errorf("wave %d: %w", wi, err))
		}
		for _, p := range wave {
			graph.Node(p).Published = true
		}
	}

	if err := o.publishAgent(ctx, exec, ev, access, rec, merge); err != nil {
		return abort(err)
	}

	if cfg.VersionTag != "" {
		if err := o.appendRelease(ctx, exec, history, access, entry, rec); err != nil {
			// Content is fully published; persist the record without
			// the release entry and surface the failure.
			if perr := persist(); perr != nil {
				slog.Error("persisting record failed", "error", perr)
			}
			return rec, fmt.Errorf("content published, release entry failed: %w", err)
		}
	}

	if err := persist(); err != nil {
		return rec, err
	}
	slog.Info("deployment complete", "run", runToken,
		"units", len(rec.Units), "new_txs", rec.NewTxCount, "new_bytes", rec.NewBytes, "fee", rec.TotalFee)
	return rec, nil
}

// recoverFromJournal folds journal rows from runs that never produced
// a deployment record (a crash between broadcast and record write)
// into the cache baseline. Only plain unit inscriptions are
// recoverable: a journal row carries enough to rebuild their
// PublishedUnit, and content fingerprint alone suffices for
// dependency-free reuse. Dependents and chunked units republish.
func recoverFromJournal(ctx context.Context, j *journal.Journal, history *manifest.History) *manifest.DeploymentRecord {
	tokens, err := j.RunTokens(ctx)
	if err != nil {
		slog.Warn("journal unreadable, skipping crash recovery", "error", err)
		return nil
	}
	known := make(map[string]bool, len(history.Deployments))
	for _, d := range history.Deployments {
		known[d.RunToken] = true
	}

	var merged manifest.DeploymentRecord
	if base := history.Latest(); base != nil {
		merged = *base
		merged.Units = append([]manifest.PublishedUnit(nil), base.Units...)
	}
	index := make(map[string]int, len(merged.Units))
	for i, u := range merged.Units {
		index[u.Path] = i
	}

	recovered := 0
	for _, tok := range tokens {
		if known[tok] {
			continue
		}
		entries, err := j.ByRun(ctx, tok)
		if err != nil {
			slog.Warn("journal run unreadable", "run", tok, "error", err)
			continue
		}
		for _, e := range entries {
			if e.Kind != journal.KindUnit {
				continue
			}
			u := manifest.PublishedUnit{
				Path:        e.Path,
				TxID:        e.TxID,
				Vout:        e.Vout,
				AccessPath:  ledger.AccessPath(e.TxID, e.Vout),
				Size:        e.Size,
				Fingerprint: e.Fingerprint,
			}
			if i, ok := index[u.Path]; ok {
				merged.Units[i] = u
			} else {
				index[u.Path] = len(merged.Units)
				merged.Units = append(merged.Units, u)
			}
			recovered++
		}
	}
	if recovered == 0 {
		return nil
	}
	slog.Info("recovered publishes from journal", "units", recovered)
	return &merged
}

// rewritten returns the payload to inscribe for a non-chunked unit:
// reference-rewritten for text formats, raw bytes otherwise.
func (o *Orchestrator) rewritten(unit *analyze.ContentUnit, data []byte, access *publish.AccessMap) []byte {
	if !analyze.IsRewritable(unit.MIME) {
		return data
	}
	snap := access.Snapshot()
	return analyze.RewriteRefs(unit.Path, unit.MIME, data, func(resolved string) (string, bool) {
		ap, ok := snap[resolved]
		if !ok {
			return "", false
		}
		return o.Config.GatewayPrefix + ap, true
	})
}

// preSplit sizes and broadcasts the funding split. A dry planning pass
// over the waves predicts which units will publish fresh (a unit is
// fresh when its bytes changed or any dependency resolves to a new
// access path) so the split matches the run's real demand.
func (o *Orchestrator) preSplit(ctx context.Context, ctrl *outputs.Controller, ev *cache.Evaluator,
	graph *analyze.Graph, plan *waves.Plan, chunkPlans map[string]*chunk.Plan,
	payloads map[string][]byte, rec *manifest.DeploymentRecord, recorder publish.Recorder, runToken string) error {

	planAccess := publish.NewAccessMap()
	freshTx := 0
	maxLen := 1024
	for _, wave := range plan.Waves {
		for _, p := range wave {
			u := graph.Node(p).Unit
			if pu, ok := ev.Evaluate(u, graph.Deps(p), planAccess); ok {
				planAccess.Set(p, pu.AccessPath)
				continue
			}
			if cp := chunkPlans[p]; cp != nil {
				freshTx += len(cp.Payloads) + 1
				for _, payload := range cp.Payloads {
					maxLen = max(maxLen, len(payload))
				}
			} else {
				freshTx++
				maxLen = max(maxLen, len(payloads[p]))
			}
		}
	}
	if freshTx <= 1 {
		return nil
	}

	// Headroom for the reassembly agent, a release entry, and retries
	// that burn a claim.
	count := freshTx + 3
	valuePer := o.Config.FeeRate*int64(maxLen+2048)/1000 + 3*ledger.DustLimit + 2048

	txid, fee, err := ctrl.PreSplit(ctx, count, valuePer, o.Config.FeeRate)
	if err != nil {
		return err
	}
	rec.TxIDs = append(rec.TxIDs, txid)
	rec.TotalFee += fee

	if recorder != nil {
		err := recorder.Append(ctx, journal.Entry{
			TxID: txid, RunToken: runToken, Kind: journal.KindSplit, ChunkIndex: -1, Fee: fee,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// publishAgent generates and publishes the chunk reassembly agent when
// any unit of the deployment is chunked. The agent is itself
// cache-evaluated: an unchanged manifest set reuses the prior agent.
func (o *Orchestrator) publishAgent(ctx context.Context, exec *publish.Executor, ev *cache.Evaluator,
	access *publish.AccessMap, rec *manifest.DeploymentRecord, merge func(*publish.WaveResult)) error {

	var manifests []manifest.ChunkManifest
	for _, u := range rec.Units {
		if u.Manifest != nil {
			manifests = append(manifests, *u.Manifest)
		}
	}
	if len(manifests) == 0 {
		return nil
	}

	src, err := chunk.GenerateAgent(manifests, o.Config.GatewayPrefix)
	if err != nil {
		return err
	}
	unit := &analyze.ContentUnit{
		Path:        chunk.AgentPath,
		MIME:        "application/javascript",
		Fingerprint: fingerprint.Content(src),
		Size:        int64(len(src)),
	}

	if pu, ok := ev.Evaluate(unit, nil, access); ok {
		access.Set(pu.Path, pu.AccessPath)
		rec.Units = append(rec.Units, pu)
		o.Hooks.unitCached(pu.Path, pu.AccessPath)
		return nil
	}

	res, err := exec.PublishWave(ctx, []publish.Job{{Unit: unit, Payload: src}}, access)
	merge(res)
	if err != nil {
		return fmt.Errorf("reassembly agent: %w", err)
	}
	return nil
}

// appendRelease inscribes this run's entry on the release chain and
// records the new tip.
func (o *Orchestrator) appendRelease(ctx context.Context, exec *publish.Executor,
	history *manifest.History, access *publish.AccessMap, entry string, rec *manifest.DeploymentRecord) error {

	tip := ""
	for i := len(history.Deployments) - 1; i >= 0; i-- {
		if history.Deployments[i].VersionTxID != "" {
			tip = history.Deployments[i].VersionTxID
			break
		}
	}

	chain := version.NewChain(func(ctx context.Context, contentType string, payload []byte) (string, error) {
		txid, fee, err := exec.PublishRaw(ctx, "release/"+o.Config.VersionTag, journal.KindVersion, contentType, payload)
		if err != nil {
			return "", err
		}
		rec.TxIDs = append(rec.TxIDs, txid)
		rec.TotalFee += fee
		return txid, nil
	}, history.ChainOrigin, tip)

	entryAccess, _ := access.Get(entry)
	txid, err := chain.Append(ctx, version.Entry{
		Tag:         o.Config.VersionTag,
		Description: o.Config.VersionDescription,
		RunToken:    rec.RunToken,
		AppEntry:    entryAccess,
		Timestamp:   rec.Timestamp,
	})
	if err != nil {
		return err
	}
	rec.VersionTxID = txid
	history.ChainOrigin = chain.Origin()
	return nil
}
