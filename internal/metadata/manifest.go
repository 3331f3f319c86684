package metadata

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OutputFile describes a single result file written by a run.
type OutputFile struct {
	Path      string `json:"path"`
	Month     string `json:"month"`
	Rows      int    `json:"row_count"`
	SizeBytes int64  `json:"file_size_in_bytes"`
}

// Manifest accumulates the output inventory of one processing run and is
// written next to the result files, so downstream loaders can pick up a
// run without listing the directory.
type Manifest struct {
	RunID     string       `json:"run_id"`
	App       string       `json:"app"`
	Version   string       `json:"version"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Files     []OutputFile `json:"files"`

	mu sync.Mutex
}

// NewManifest starts a manifest with a fresh run identifier.
func NewManifest(app, version string) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		App:       app,
		Version:   version,
		StartedAt: time.Now().UTC(),
	}
}

// AddFile records one written output file.
func (m *Manifest) AddFile(f OutputFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files = append(m.Files, f)
}

// WriteFile stamps the end time and persists the manifest as JSON.
func (m *Manifest) WriteFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndedAt = time.Now().UTC()
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
