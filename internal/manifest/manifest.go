package manifest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/metafile"
	"github.com/hupe1980/vinstore/model"
)

const (
	// FileName is the manifest's name inside the data directory.
	FileName = "SCHEMA"

	magic   = 0x56534348 // "VSCH"
	version = 1
)

// Manifest describes the single table of a data directory.
type Manifest struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	Schema    model.Schema
}

// New returns a manifest for a freshly created table.
func New(name string, schema model.Schema) *Manifest {
	return &Manifest{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Schema:    model.NewSchema(schema.Columns...),
	}
}

// Save persists m.
//
// Payload:
//
//	ID (16 bytes)
//	CreatedAt (8 bytes) UnixNano
//	Name (string)
//	NumColumns (4 bytes)
//	Columns...
//	  Type (1 byte)
//	  Name (string)
func (m *Manifest) Save(fsys fs.FileSystem, path string) error {
	enc := metafile.NewEncoder(64 + 32*m.Schema.Len())
	enc.Raw(m.ID[:])
	enc.Int64(m.CreatedAt.UnixNano())
	enc.String(m.Name)
	enc.Uint32(uint32(m.Schema.Len()))
	for _, c := range m.Schema.Columns {
		enc.Uint8(uint8(c.Type))
		enc.String(c.Name)
	}
	return metafile.Write(fsys, path, magic, version, enc.Bytes())
}

// Load reads a manifest written by Save and validates its schema.
func Load(fsys fs.FileSystem, path string) (*Manifest, error) {
	payload, err := metafile.Read(fsys, path, magic, version)
	if err != nil {
		return nil, err
	}

	dec := metafile.NewDecoder(payload)
	m := &Manifest{}
	copy(m.ID[:], dec.Raw(len(m.ID)))
	m.CreatedAt = time.Unix(0, dec.Int64()).UTC()
	m.Name = dec.String()
	n := int(dec.Uint32())
	if n > dec.Remaining() {
		return nil, fmt.Errorf("%w: impossible column count %d", metafile.ErrCorrupt, n)
	}
	cols := make([]model.Column, n)
	for i := range cols {
		cols[i].Type = model.ColumnType(dec.Uint8())
		cols[i].Name = dec.String()
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	m.Schema = model.NewSchema(cols...)
	if err := m.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", metafile.ErrCorrupt, err)
	}
	return m, nil
}
