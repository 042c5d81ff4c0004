package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/chunk"
	"github.com/chainpress/chainpress/internal/fingerprint"
	"github.com/chainpress/chainpress/internal/journal"
	"github.com/chainpress/chainpress/internal/ledger"
	"github.com/chainpress/chainpress/internal/manifest"
	"github.com/chainpress/chainpress/internal/outputs"
)

// AccessMap is the shared path -> access path mapping. Jobs within a
// wave write it concurrently; the text rewriters and the next wave's
// cache evaluation read it between waves.
type AccessMap struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewAccessMap creates an empty map.
func NewAccessMap() *AccessMap {
	return &AccessMap{m: make(map[string]string)}
}

// Set records a unit's access path. Each job writes exactly one entry.
func (am *AccessMap) Set(path, accessPath string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.m[path] = accessPath
}

// Get returns a unit's access path.
func (am *AccessMap) Get(path string) (string, bool) {
	am.mu.RLock()
	defer am.mu.RUnlock()
	v, ok := am.m[path]
	return v, ok
}

// Snapshot copies the current mapping for consumers that iterate.
func (am *AccessMap) Snapshot() map[string]string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	out := make(map[string]string, len(am.m))
	for k, v := range am.m {
		out[k] = v
	}
	return out
}

// Len returns the number of resolved paths.
func (am *AccessMap) Len() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.m)
}

// Job is one unit to publish in the current wave.
type Job struct {
	Unit *analyze.ContentUnit

	// Payload is the bytes to inscribe: the raw file for binary
	// units, the reference-rewritten bytes for text units. Unused
	// when Chunks is set (chunk payloads were cut from the raw file).
	Payload []byte

	// Chunks is the split plan for an oversized unit, nil otherwise.
	Chunks *chunk.Plan

	// DepsFingerprint is the dependency fingerprint computed over the
	// current access paths of the unit's dependencies.
	DepsFingerprint string
}

// Recorder receives a journal entry for every broadcast transaction.
type Recorder interface {
	Append(ctx context.Context, e journal.Entry) error
}

// Events are nil-safe progress callbacks.
type Events struct {
	UnitPublished  func(path, accessPath string)
	ChunkPublished func(path string, index, total int)
}

func (ev Events) unitPublished(path, accessPath string) {
	if ev.UnitPublished != nil {
		ev.UnitPublished(path, accessPath)
	}
}

func (ev Events) chunkPublished(path string, index, total int) {
	if ev.ChunkPublished != nil {
		ev.ChunkPublished(path, index, total)
	}
}

// WaveResult accumulates what a wave actually published. On error it
// still holds everything that succeeded before the failure; the
// orchestrator persists those so an aborted deployment can resume.
type WaveResult struct {
	Units []manifest.PublishedUnit
	TxIDs []string // broadcast completion order
	Fees  int64
	Bytes int64
}

// Executor publishes waves of jobs through the output controller.
type Executor struct {
	Controller *outputs.Controller
	Indexer    ledger.Indexer
	Address    string
	FeeRate    int64
	Policy     Policy
	RunToken   string

	// ChunkBatch bounds concurrent chunk publishes within one
	// chunked unit. Zero means defaultChunkBatch.
	ChunkBatch int

	// Journal, when set, durably records each broadcast.
	Journal Recorder

	Events Events

	// Sleep replaces the backoff pause in tests. Nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

const defaultChunkBatch = 4

// PublishWave runs every job concurrently and blocks until all have
// published or one has failed terminally. The returned WaveResult is
// valid even when err != nil.
func (e *Executor) PublishWave(ctx context.Context, jobs []Job, access *AccessMap) (*WaveResult, error) {
	res := &WaveResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			unit, err := e.runJob(gctx, job, res, &mu)
			if err != nil {
				return fmt.Errorf("publish %s: %w", job.Unit.Path, err)
			}
			mu.Lock()
			res.Units = append(res.Units, unit)
			mu.Unlock()
			access.Set(unit.Path, unit.AccessPath)
			e.Events.unitPublished(unit.Path, unit.AccessPath)
			return nil
		})
	}

	err := g.Wait()
	return res, err
}

// PublishRaw inscribes one standalone payload outside any wave
// (release entries, for example), through the same claim, retry, and
// journal path as wave jobs. Returns the txid and fee paid.
func (e *Executor) PublishRaw(ctx context.Context, label, kind, contentType string, payload []byte) (string, int64, error) {
	var res WaveResult
	var mu sync.Mutex
	return e.publishPayload(ctx, label, kind, -1,
		payload, contentType, fingerprint.Content(payload), &res, &mu)
}

// runJob publishes one unit (and its chunks, if split).
func (e *Executor) runJob(ctx context.Context, job Job, res *WaveResult, mu *sync.Mutex) (manifest.PublishedUnit, error) {
	if job.Chunks != nil {
		return e.runChunkedJob(ctx, job, res, mu)
	}

	txid, _, err := e.publishPayload(ctx, job.Unit.Path, journal.KindUnit, -1,
		job.Payload, job.Unit.MIME, job.Unit.Fingerprint, res, mu)
	if err != nil {
		return manifest.PublishedUnit{}, err
	}

	mu.Lock()
	res.Bytes += int64(len(job.Payload))
	mu.Unlock()

	return manifest.PublishedUnit{
		Path:            job.Unit.Path,
		TxID:            txid,
		Vout:            0,
		AccessPath:      ledger.AccessPath(txid, 0),
		Size:            job.Unit.Size,
		Fingerprint:     job.Unit.Fingerprint,
		DepsFingerprint: job.DepsFingerprint,
	}, nil
}

// runChunkedJob publishes every chunk (bounded concurrency), then the
// manifest that ties them together. The manifest inscription is the
// unit's access path.
func (e *Executor) runChunkedJob(ctx context.Context, job Job, res *WaveResult, mu *sync.Mutex) (manifest.PublishedUnit, error) {
	plan := job.Chunks
	m := plan.Manifest
	m.Chunks = append([]manifest.ChunkRecord(nil), plan.Manifest.Chunks...)
	total := len(plan.Payloads)

	batch := e.ChunkBatch
	if batch <= 0 {
		batch = defaultChunkBatch
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batch)
	for i := range plan.Payloads {
		i := i
		g.Go(func() error {
			txid, _, err := e.publishPayload(gctx, job.Unit.Path, journal.KindChunk, i,
				plan.Payloads[i], analyze.DefaultMIME, m.Chunks[i].Fingerprint, res, mu)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i, total, err)
			}
			m.Chunks[i].TxID = txid
			m.Chunks[i].Vout = 0
			e.Events.chunkPublished(job.Unit.Path, i, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return manifest.PublishedUnit{}, err
	}

	blob, err := json.Marshal(m)
	if err != nil {
		return manifest.PublishedUnit{}, fmt.Errorf("marshal chunk manifest: %w", err)
	}
	txid, _, err := e.publishPayload(ctx, job.Unit.Path, journal.KindManifest, -1,
		blob, "application/json", job.Unit.Fingerprint, res, mu)
	if err != nil {
		return manifest.PublishedUnit{}, fmt.Errorf("manifest: %w", err)
	}

	mu.Lock()
	res.Bytes += m.TotalSize + int64(len(blob))
	mu.Unlock()

	return manifest.PublishedUnit{
		Path:            job.Unit.Path,
		TxID:            txid,
		Vout:            0,
		AccessPath:      ledger.AccessPath(txid, 0),
		Size:            job.Unit.Size,
		Fingerprint:     job.Unit.Fingerprint,
		DepsFingerprint: job.DepsFingerprint,
		ChunkCount:      total,
		Manifest:        &m,
	}, nil
}

// publishPayload claims an output, builds and broadcasts one
// inscription, and records it. Retried per the policy with a fresh
// controller claim on every attempt; a failed attempt's claim is
// never reused.
func (e *Executor) publishPayload(ctx context.Context, path, kind string, chunkIndex int,
	payload []byte, contentType, fp string, res *WaveResult, mu *sync.Mutex) (string, int64, error) {

	var txid string
	var fee int64

	label := path
	if chunkIndex >= 0 {
		label = fmt.Sprintf("%s#%d", path, chunkIndex)
	}

	err := retry(ctx, e.Policy, label, e.Sleep, func(ctx context.Context) error {
		out, err := e.Controller.Claim(ctx, e.claimValue(len(payload)))
		if err != nil {
			return err
		}

		plan, err := ledger.BuildInscriptionTx(
			ledger.Inscription{ContentType: contentType, Payload: payload},
			out, e.Address, e.FeeRate)
		if err != nil {
			return err
		}

		id, err := e.Indexer.Broadcast(ctx, plan.Raw)
		if err != nil {
			return err
		}

		if plan.ChangeValue > 0 {
			e.Controller.Add(ledger.Output{TxID: id, Vout: 1, Value: plan.ChangeValue})
		}
		txid = id
		fee = plan.Fee
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	slog.Debug("inscription broadcast", "path", label, "txid", txid, "bytes", len(payload), "fee", fee)

	mu.Lock()
	res.TxIDs = append(res.TxIDs, txid)
	res.Fees += fee
	mu.Unlock()

	if e.Journal != nil {
		entry := journal.Entry{
			TxID:        txid,
			RunToken:    e.RunToken,
			Path:        path,
			Kind:        kind,
			ChunkIndex:  chunkIndex,
			Size:        int64(len(payload)),
			Fee:         fee,
			Fingerprint: fp,
		}
		if err := e.Journal.Append(ctx, entry); err != nil {
			return "", 0, fmt.Errorf("journal: %w", err)
		}
	}

	return txid, fee, nil
}

// claimValue estimates the output value a publish needs: fee at the
// configured rate plus the inscription value, with headroom so the
// change path stays above dust.
func (e *Executor) claimValue(payloadLen int) int64 {
	est := e.FeeRate * int64(payloadLen+512) / 1000
	min := est + ledger.InscriptionValue + 2*ledger.DustLimit
	if min < 2_000 {
		min = 2_000
	}
	return min
}
