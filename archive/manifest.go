package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/partstore/internal/directory"
)

// ManifestFormat is the current manifest encoding version.
const ManifestFormat = 1

var (
	// ErrNoManifest is returned when a partition has never been archived.
	ErrNoManifest = errors.New("archive: no manifest")
	// ErrConcurrentModification is returned when another writer committed
	// the manifest version being committed.
	ErrConcurrentModification = errors.New("archive: concurrent modification detected")
	// ErrChecksumMismatch is returned when restored bytes do not match the manifest.
	ErrChecksumMismatch = errors.New("archive: checksum mismatch")
)

// Manifest describes one archived version of a partition.
type Manifest struct {
	Format    int            `json:"format"`
	Partition string         `json:"partition"`
	Version   uint64         `json:"version"`
	Codec     string         `json:"codec"`
	CreatedAt time.Time      `json:"created_at"`
	Segments  []SegmentEntry `json:"segments"`
}

// SegmentEntry is one archived segment file.
type SegmentEntry struct {
	Kind string `json:"kind"`
	ID   uint64 `json:"id"`
	// Size is the number of segment bytes archived.
	Size uint64 `json:"size"`
	// Stored is the encoded blob size.
	Stored int64  `json:"stored"`
	CRC32C uint32 `json:"crc32c"`
	Blob   string `json:"blob"`
}

// FileName returns the segment's file name inside a partition directory.
func (e SegmentEntry) FileName() (string, error) {
	k, err := directory.ParseKind(e.Kind)
	if err != nil {
		return "", err
	}
	return directory.FileName(k, e.ID), nil
}

// Find returns the entry for the segment of kind with id.
func (m *Manifest) Find(kind string, id uint64) (SegmentEntry, bool) {
	for _, e := range m.Segments {
		if e.Kind == kind && e.ID == id {
			return e, true
		}
	}
	return SegmentEntry{}, false
}

// TotalSize returns the archived segment bytes.
func (m *Manifest) TotalSize() uint64 {
	var n uint64
	for _, e := range m.Segments {
		n += e.Size
	}
	return n
}

// Encode returns the JSON form of m.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// DecodeManifest parses a manifest written by Encode.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("archive: decode manifest: %w", err)
	}
	if m.Format != ManifestFormat {
		return nil, fmt.Errorf("archive: unsupported manifest format %d", m.Format)
	}
	return &m, nil
}

// ManifestPath returns the blob name of a manifest version.
func ManifestPath(partition string, version uint64) string {
	return fmt.Sprintf("%s/manifests/%020d.json", partition, version)
}
