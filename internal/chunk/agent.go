package chunk

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/chainpress/chainpress/internal/manifest"
)

// AgentPath is the build-root-relative path the reassembly agent is
// published under. Site HTML registers it as a service worker.
const AgentPath = "chainpress-sw.js"

// agentTemplate is the service worker source. @@MANIFESTS@@ is
// replaced with the JSON manifest set; @@GATEWAY@@ with the content
// gateway prefix chunks are fetched from.
const agentTemplate = `// chainpress reassembly agent (generated)
'use strict';

const MANIFESTS = @@MANIFESTS@@;
const GATEWAY = '@@GATEWAY@@';

const byPath = new Map(MANIFESTS.map((m) => [m.path, m]));

self.addEventListener('install', () => self.skipWaiting());
self.addEventListener('activate', (event) => event.waitUntil(self.clients.claim()));

self.addEventListener('fetch', (event) => {
  const url = new URL(event.request.url);
  const path = url.pathname.replace(/^\/+/, '');
  const m = byPath.get(path);
  if (!m) {
    return;
  }
  event.respondWith(reassemble(m));
});

async function reassemble(m) {
  const stream = new ReadableStream({
    async start(controller) {
      for (const chunk of m.chunks) {
        const res = await fetch(GATEWAY + chunk.txid + 'i' + chunk.vout);
        if (!res.ok) {
          controller.error(new Error('chunk ' + chunk.index + ' fetch failed: ' + res.status));
          return;
        }
        controller.enqueue(new Uint8Array(await res.arrayBuffer()));
      }
      controller.close();
    },
  });
  return new Response(stream, {
    headers: {
      'Content-Type': m.mime,
      'Content-Length': String(m.total_size),
    },
  });
}
`

// GenerateAgent renders the reassembly agent source for a set of
// chunk manifests. Output is deterministic: manifests are sorted by
// path and serialized with stable field order, so the same manifest
// set always fingerprints identically (which is what lets the agent
// itself be cache-evaluated).
func GenerateAgent(manifests []manifest.ChunkManifest, gatewayPrefix string) ([]byte, error) {
	sorted := append([]manifest.ChunkManifest(nil), manifests...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	blob, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("generate agent: %w", err)
	}
	if len(sorted) == 0 {
		blob = []byte("[]")
	}

	src := strings.Replace(agentTemplate, "@@MANIFESTS@@", string(blob), 1)
	src = strings.Replace(src, "@@GATEWAY@@", gatewayPrefix, 1)
	return []byte(src), nil
}
