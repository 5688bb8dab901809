// Package bronze persists raw source payloads in an immutable, timestamped
// tree and writes a provenance manifest for each of them.
//
// Layout:
//
//	<bronze_root>/<source>/<dataset>/<period>/extracted_at=<ts>/raw.<ext>
//	<manifests_root>/<source>/<dataset>/<period>/extracted_at=<ts>.yml
package bronze

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Mirror replicates persisted files to secondary storage. Keys are slash
// separated paths relative to the data root ("bronze/..." or "manifests/...").
type Mirror interface {
	Put(ctx context.Context, key, localPath, contentType string) error
}

// Config carries the roots and provenance stamped into manifests.
type Config struct {
	BronzeRoot      string
	ManifestsRoot   string
	Tool            string
	Orchestrator    string
	PipelineVersion string
	Destination     string
}

// Store writes bronze artifacts. It is safe for concurrent use by
// different runs; paths are unique per extraction timestamp.
type Store struct {
	cfg    Config
	mirror Mirror
	now    func() time.Time
}

// NewStore returns a Store. mirror may be nil.
func NewStore(cfg Config, mirror Mirror) *Store {
	if cfg.Tool == "" {
		cfg.Tool = "tip"
	}
	if cfg.Destination == "" {
		cfg.Destination = "postgres"
	}
	return &Store{cfg: cfg, mirror: mirror, now: time.Now}
}

// PersistRequest describes one raw payload to persist.
type PersistRequest struct {
	Source          string
	Dataset         string
	ReferencePeriod string
	Raw             []byte
	Extension       string
	SourceURI       string
	TerritoryCode   string
	TerritoryScope  string
	RunID           string
	SchemaVersion   string
	Checks          []ManifestCheck
	TablesWritten   []string
	RowsWritten     []TableRows

	// ExtractedAt pins the timestamp folder. Retrying with the same value
	// overwrites; the zero value uses the current time.
	ExtractedAt time.Time
}

// Artifact describes a persisted payload and its manifest.
type Artifact struct {
	RawPath        string    `json:"raw_path"`
	ManifestPath   string    `json:"manifest_path"`
	ChecksumSHA256 string    `json:"checksum_sha256"`
	SizeBytes      int64     `json:"size_bytes"`
	ExtractedAt    time.Time `json:"extracted_at"`
	SourceURI      string    `json:"source_uri"`
}

// PersistRawBytes writes the raw payload, recomputes its checksum from disk
// and writes a validated manifest beside it.
func (s *Store) PersistRawBytes(ctx context.Context, req PersistRequest) (Artifact, error) {
	extracted := req.ExtractedAt
	if extracted.IsZero() {
		extracted = s.now()
	}
	extracted = extracted.UTC().Truncate(time.Second)

	rel := filepath.Join(Slug(req.Source), Slug(req.Dataset), Slug(req.ReferencePeriod))
	ext := NormalizeExtension(req.Extension)
	rawPath := filepath.Join(s.cfg.BronzeRoot, rel, TimestampFolder(extracted), "raw."+ext)
	manifestPath := filepath.Join(s.cfg.ManifestsRoot, rel, TimestampFolder(extracted)+".yml")

	if err := writeAtomic(rawPath, req.Raw); err != nil {
		return Artifact{}, fmt.Errorf("write raw: %w", err)
	}
	sum, size, err := checksumFile(rawPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("checksum raw: %w", err)
	}

	m := &Manifest{
		Source:          req.Source,
		Dataset:         req.Dataset,
		TerritoryCode:   req.TerritoryCode,
		TerritoryScope:  req.TerritoryScope,
		ReferencePeriod: req.ReferencePeriod,
		ExtractedAtUTC:  extracted.Format(time.RFC3339),
		Raw: RawSection{
			Format:         ext,
			URI:            req.SourceURI,
			LocalPath:      filepath.ToSlash(rawPath),
			SizeBytes:      size,
			ChecksumSHA256: sum,
		},
		Ingestion: IngestionSection{
			Tool:            s.cfg.Tool,
			Orchestrator:    s.cfg.Orchestrator,
			PipelineVersion: s.cfg.PipelineVersion,
			RunID:           req.RunID,
		},
		Validation: ValidationSection{
			SchemaVersion: req.SchemaVersion,
			Checks:        req.Checks,
		},
		Load: LoadSection{
			Destination:   s.cfg.Destination,
			TablesWritten: req.TablesWritten,
			RowsWritten:   req.RowsWritten,
		},
	}
	if m.Validation.Checks == nil {
		m.Validation.Checks = []ManifestCheck{}
	}
	if m.Load.TablesWritten == nil {
		m.Load.TablesWritten = []string{}
	}
	if m.Load.RowsWritten == nil {
		m.Load.RowsWritten = []TableRows{}
	}
	if err := m.Validate(); err != nil {
		return Artifact{}, err
	}
	doc, err := yaml.Marshal(m)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeAtomic(manifestPath, doc); err != nil {
		return Artifact{}, fmt.Errorf("write manifest: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, mirrorKey("bronze", rawPath, s.cfg.BronzeRoot), rawPath, "application/octet-stream"); err != nil {
			return Artifact{}, fmt.Errorf("mirror raw: %w", err)
		}
		if err := s.mirror.Put(ctx, mirrorKey("manifests", manifestPath, s.cfg.ManifestsRoot), manifestPath, "application/yaml"); err != nil {
			return Artifact{}, fmt.Errorf("mirror manifest: %w", err)
		}
	}

	return Artifact{
		RawPath:        rawPath,
		ManifestPath:   manifestPath,
		ChecksumSHA256: sum,
		SizeBytes:      size,
		ExtractedAt:    extracted,
		SourceURI:      req.SourceURI,
	}, nil
}

// writeAtomic streams data to a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ChecksumFile returns the hex SHA-256 of the file at path.
func ChecksumFile(path string) (string, error) {
	sum, _, err := checksumFile(path)
	return sum, err
}

func mirrorKey(prefix, path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return prefix + "/" + filepath.ToSlash(rel)
}
