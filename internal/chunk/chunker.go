package chunk

import (
	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/fingerprint"
	"github.com/chainpress/chainpress/internal/manifest"
)

const (
	// DefaultThreshold is the protocol-imposed size limit: files
	// larger than this must be split.
	DefaultThreshold = 1 << 20 // 1 MiB

	// UniformChunkSize is the part size for ordinary oversized files.
	UniformChunkSize = 1 << 20

	// VideoBaseSize is the unit of the progressive video schedule.
	VideoBaseSize = 256 << 10 // 256 KiB
)

// videoRamp is the progressive schedule, in units of VideoBaseSize.
// After the ramp every chunk uses the final (largest) multiplier.
var videoRamp = []int64{1, 1, 2, 3, 5, 8, 10}

// Plan is a split decision for one unit: the chunk payloads and the
// manifest describing their reassembly. Transaction ids are filled in
// by the publisher after each chunk is inscribed.
type Plan struct {
	Path     string
	MIME     string
	Payloads [][]byte
	Manifest manifest.ChunkManifest
}

// Split decides whether a unit needs chunking and, if so, cuts it.
//
// Returns nil when the unit fits under the threshold or is the entry
// document (the entry is never split, whatever its size).
func Split(unit *analyze.ContentUnit, data []byte, isEntry bool, threshold int64) *Plan {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if isEntry || unit.Size <= threshold {
		return nil
	}

	var sizes []int64
	nominal := int64(UniformChunkSize)
	if analyze.IsVideo(unit.MIME) {
		sizes = progressiveSizes(unit.Size)
		nominal = VideoBaseSize
	} else {
		sizes = uniformSizes(unit.Size, UniformChunkSize)
	}

	plan := &Plan{
		Path: unit.Path,
		MIME: unit.MIME,
		Manifest: manifest.ChunkManifest{
			Version:   manifest.ManifestVersion,
			Path:      unit.Path,
			MIME:      unit.MIME,
			TotalSize: unit.Size,
			ChunkSize: nominal,
		},
	}

	var off int64
	for i, size := range sizes {
		payload := data[off : off+size]
		plan.Payloads = append(plan.Payloads, payload)
		plan.Manifest.Chunks = append(plan.Manifest.Chunks, manifest.ChunkRecord{
			Index:       i,
			Size:        size,
			Fingerprint: fingerprint.Chunk(payload),
		})
		off += size
	}
	return plan
}

// uniformSizes cuts total into ceil(total/chunkSize) parts, all of
// chunkSize except a truncated final part.
func uniformSizes(total, chunkSize int64) []int64 {
	var sizes []int64
	for remaining := total; remaining > 0; {
		size := chunkSize
		if remaining < size {
			size = remaining
		}
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes
}

// progressiveSizes cuts total on the video ramp: 1,1,2,3,5,8,10 base
// units, then 10 units for every remaining chunk. The final chunk is
// truncated to the remainder.
func progressiveSizes(total int64) []int64 {
	var sizes []int64
	remaining := total
	for i := 0; remaining > 0; i++ {
		mult := videoRamp[len(videoRamp)-1]
		if i < len(videoRamp) {
			mult = videoRamp[i]
		}
		size := mult * VideoBaseSize
		if remaining < size {
			size = remaining
		}
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes
}
