// Read sessions.
//
// A Reader loads every grid and the file metadata of a container into
// memory under a shared lock, then serves imports and metadata lookups
// without touching the file again. Its lifecycle is:
//
//	created ──Open──▶ opened ──Close──▶ closed
//
// Lookups before Open fail with ErrNotOpen; a second Open fails with
// ErrAlreadyOpen. A Reader is not safe for concurrent use.
package densevdb

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

type readerState int

const (
	readerCreated readerState = iota
	readerOpen
	readerClosed
)

// GridInfo summarises one grid of a container.
type GridInfo struct {
	Name         string
	Type         string // Classification label, see Classify
	Kind         ValueKind
	Resolution   Resolution
	ActiveVoxels int64
	Bounds       Bounds // Active voxel bounds, zero when ActiveVoxels is 0
}

// Reader is a read session.
type Reader struct {
	config Config
	state  readerState
	path   string
	header *Header
	grids  map[string]*Grid
	order  []*Grid
	meta   Meta
}

// NewReader returns a reader that has not yet opened a file.
func NewReader(config Config) *Reader {
	return &Reader{
		config: config.withDefaults(),
		grids:  make(map[string]*Grid),
	}
}

func (r *Reader) opened() error {
	switch r.state {
	case readerCreated:
		return ErrNotOpen
	case readerClosed:
		return ErrClosed
	}
	return nil
}

// Open loads the container at path. On failure the reader stays
// unopened and may be opened again.
func (r *Reader) Open(path string) error {
	switch r.state {
	case readerOpen:
		return fmt.Errorf("open %s: %w", path, ErrAlreadyOpen)
	case readerClosed:
		return fmt.Errorf("open %s: %w", path, ErrClosed)
	}

	err := guard("open", func() error {
		return r.load(path)
	})
	if err != nil {
		for _, g := range r.order {
			g.release()
		}
		clear(r.grids)
		r.order = nil
		r.meta = Meta{}
		r.header = nil
		return fmt.Errorf("open %s: %w", path, err)
	}

	r.state = readerOpen
	r.path = path
	r.config.Logger.WithFields(logrus.Fields{
		"action":      "open",
		"path":        path,
		"grids":       len(r.order),
		"metadata":    r.meta.Len(),
		"compression": Compression(r.header.Compression).String(),
	}).Debug("container loaded")
	return nil
}

func (r *Reader) load(path string) error {
	f, release, err := openLocked(path, os.O_RDONLY, LockShared)
	if err != nil {
		return err
	}
	defer release()

	hdr, err := header(f)
	if err != nil {
		return err
	}
	if hdr.Error != 0 {
		r.config.Logger.WithFields(logrus.Fields{
			"action": "open",
			"path":   path,
		}).Warn("container was left dirty by an interrupted update")
	}

	cat, err := catalogue(f, r.config)
	if err != nil {
		return err
	}
	if cat.meta != nil {
		m, err := metaFromEntries(cat.meta.Meta)
		if err != nil {
			return err
		}
		r.meta = m
	}

	c := Compression(hdr.Compression)
	for _, e := range cat.grids {
		g, err := loadGrid(f, e.rec, c)
		if err != nil {
			return fmt.Errorf("grid %q: %w", e.rec.Name, err)
		}
		r.grids[g.name] = g
		r.order = append(r.order, g)
	}
	r.header = hdr
	return nil
}

// loadGrid rebuilds a grid from its descriptor and payload record.
func loadGrid(f *os.File, rec *GridRecord, c Compression) (*Grid, error) {
	kind, meta, err := describe(rec)
	if err != nil {
		return nil, err
	}

	data, err := line(f, rec.Offset)
	if err != nil {
		return nil, err
	}
	if !valid(data) || kindOf(data) != TypePayload {
		return nil, fmt.Errorf("%w: descriptor points at offset %d which is not a payload", ErrCorruptRecord, rec.Offset)
	}
	p, err := decodePayload(data)
	if err != nil {
		return nil, err
	}
	if p.ID != rec.ID {
		return nil, fmt.Errorf("%w: payload id %s does not match descriptor %s", ErrCorruptRecord, p.ID, rec.ID)
	}

	raw, err := unpack(p.Data, c)
	if err != nil {
		return nil, err
	}
	if len(raw) != p.Size {
		return nil, fmt.Errorf("%w: payload is %d bytes, expected %d", ErrCorruptRecord, len(raw), p.Size)
	}
	if checksum(raw) != p.Checksum {
		return nil, ErrChecksum
	}

	voxels, err := decodeGridData(kind, raw, rec.Background, c.ActiveMask())
	if err != nil {
		return nil, err
	}
	return &Grid{
		name:      rec.Name,
		kind:      kind,
		res:       rec.Resolution,
		transform: rec.Transform,
		meta:      meta,
		data:      voxels,
	}, nil
}

// describe validates the descriptor fields shared by loading and listing.
func describe(rec *GridRecord) (ValueKind, Meta, error) {
	kind, ok := parseValueKind(rec.Kind)
	if !ok {
		return 0, Meta{}, fmt.Errorf("%w: unknown grid type %q", ErrCorruptRecord, rec.Kind)
	}
	if err := validName(rec.Name); err != nil {
		return 0, Meta{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if err := rec.Resolution.Validate(); err != nil {
		return 0, Meta{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	meta, err := metaFromEntries(rec.Meta)
	if err != nil {
		return 0, Meta{}, err
	}
	return kind, meta, nil
}

// Grid returns the loaded grid called name.
func (r *Reader) Grid(name string) (*Grid, error) {
	if err := r.opened(); err != nil {
		return nil, err
	}
	g, ok := r.grids[name]
	if !ok {
		return nil, fmt.Errorf("grid %q: %w", name, ErrNotFound)
	}
	return g, nil
}

// Grids summarises every loaded grid in file order. It fails as a whole
// if any grid cannot be classified.
func (r *Reader) Grids() ([]GridInfo, error) {
	if err := r.opened(); err != nil {
		return nil, err
	}
	out := make([]GridInfo, 0, len(r.order))
	for _, g := range r.order {
		typ, err := Classify(g)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", g.name, err)
		}
		out = append(out, GridInfo{
			Name:         g.name,
			Type:         typ,
			Kind:         g.kind,
			Resolution:   g.res,
			ActiveVoxels: g.ActiveVoxelCount(),
			Bounds:       boundsOf(&g.meta),
		})
	}
	return out, nil
}

// Classify returns the type label of the grid called name.
func (r *Reader) Classify(name string) (string, error) {
	g, err := r.Grid(name)
	if err != nil {
		return "", err
	}
	return Classify(g)
}

// Meta returns a copy of the file metadata.
func (r *Reader) Meta() (Meta, error) {
	if err := r.opened(); err != nil {
		return Meta{}, err
	}
	return r.meta.clone(), nil
}

func (r *Reader) lookup() (*Meta, error) {
	if err := r.opened(); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return &r.meta, nil
}

// Float returns the float file metadata entry name.
func (r *Reader) Float(name string) (float32, error) {
	m, err := r.lookup()
	if err != nil {
		return 0, err
	}
	return m.Float(name)
}

// Int returns the int32 file metadata entry name.
func (r *Reader) Int(name string) (int32, error) {
	m, err := r.lookup()
	if err != nil {
		return 0, err
	}
	return m.Int(name)
}

// Vec3f returns the 3-float file metadata entry name.
func (r *Reader) Vec3f(name string) ([3]float32, error) {
	m, err := r.lookup()
	if err != nil {
		return [3]float32{}, err
	}
	return m.Vec3f(name)
}

// Vec3i returns the 3-int file metadata entry name.
func (r *Reader) Vec3i(name string) ([3]int32, error) {
	m, err := r.lookup()
	if err != nil {
		return [3]int32{}, err
	}
	return m.Vec3i(name)
}

// Mat4 returns the matrix file metadata entry name.
func (r *Reader) Mat4(name string) (Transform, error) {
	m, err := r.lookup()
	if err != nil {
		return Transform{}, err
	}
	return m.Mat4(name)
}

// UUID returns the identity of the loaded container.
func (r *Reader) UUID() string {
	if r.header == nil {
		return ""
	}
	return r.header.UUID
}

// Compression returns the compression the loaded container was written
// with.
func (r *Reader) Compression() Compression {
	if r.header == nil {
		return CompressNone
	}
	return Compression(r.header.Compression)
}

// Close releases every loaded grid. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.state == readerClosed {
		return nil
	}
	r.state = readerClosed
	for _, g := range r.order {
		g.release()
	}
	clear(r.grids)
	r.order = nil
	return nil
}
