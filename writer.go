// Write sessions.
//
// A Writer collects grids and file metadata in memory and commits them to
// a container in a single step. Its lifecycle is linear:
//
//	created ──export / set──▶ populated ──Commit──▶ committed ──Close──▶ closed
//
// Exports and metadata sets after Commit fail with ErrCommitted; any call
// after Close fails with ErrClosed. Close releases every grid the writer
// created. A Writer is not safe for concurrent use.
package densevdb

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type writerState int

const (
	writerOpen writerState = iota
	writerCommitted
	writerClosed
)

// Writer is a write session.
type Writer struct {
	config      Config
	grids       map[string]*Grid
	order       []*Grid
	meta        Meta
	compression Compression
	state       writerState
}

// NewWriter returns an empty write session using zip compression.
func NewWriter(config Config) *Writer {
	return &Writer{
		config:      config.withDefaults(),
		grids:       make(map[string]*Grid),
		compression: CompressZip,
	}
}

// mutable reports whether the session still accepts grids and metadata.
func (w *Writer) mutable() error {
	switch w.state {
	case writerCommitted:
		return ErrCommitted
	case writerClosed:
		return ErrClosed
	}
	return nil
}

// SetCompression selects the compression applied on commit.
func (w *Writer) SetCompression(c Compression) error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("set compression: %w", err)
	}
	if !c.valid() {
		return fmt.Errorf("set compression: %w: %d", ErrInvalidArgument, int(c))
	}
	w.compression = c
	return nil
}

// Compression returns the compression that Commit will apply.
func (w *Writer) Compression() Compression {
	return w.compression
}

func (w *Writer) setMeta(name string, v Value) error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("set metadata %q: %w", name, err)
	}
	return w.meta.Set(name, v)
}

// SetFloat stores a float metadata entry, replacing any previous value.
func (w *Writer) SetFloat(name string, v float32) error {
	return w.setMeta(name, FloatValue(v))
}

// SetInt stores an int32 metadata entry.
func (w *Writer) SetInt(name string, v int32) error {
	return w.setMeta(name, IntValue(v))
}

// SetVec3f stores a 3-float metadata entry.
func (w *Writer) SetVec3f(name string, v [3]float32) error {
	return w.setMeta(name, Vec3fValue(v))
}

// SetVec3i stores a 3-int metadata entry.
func (w *Writer) SetVec3i(name string, v [3]int32) error {
	return w.setMeta(name, Vec3iValue(v))
}

// SetMat4 stores a 4×4 matrix metadata entry.
func (w *Writer) SetMat4(name string, v Transform) error {
	return w.setMeta(name, Mat4Value(v))
}

// Meta returns a copy of the file metadata collected so far.
func (w *Writer) Meta() Meta {
	return w.meta.clone()
}

// Grid returns the grid registered under name.
func (w *Writer) Grid(name string) (*Grid, error) {
	if w.state == writerClosed {
		return nil, ErrClosed
	}
	g, ok := w.grids[name]
	if !ok {
		return nil, fmt.Errorf("grid %q: %w", name, ErrNotFound)
	}
	return g, nil
}

// Grids returns the registered grids in export order.
func (w *Writer) Grids() []*Grid {
	return append([]*Grid(nil), w.order...)
}

// register adds g under its name. The first grid to claim a name keeps it.
func (w *Writer) register(g *Grid) error {
	if _, ok := w.grids[g.name]; ok {
		return fmt.Errorf("grid %q: %w", g.name, ErrNameCollision)
	}
	w.grids[g.name] = g
	w.order = append(w.order, g)
	return nil
}

// Commit writes every grid and the file metadata to path. The container
// is assembled in path+".tmp" and renamed into place, so path is either
// untouched or complete. Commit is terminal: the writer accepts no
// further grids or metadata afterwards, even when Commit fails.
func (w *Writer) Commit(path string) error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	w.state = writerCommitted

	err := guard("commit", func() error {
		return w.commit(path)
	})
	if err != nil {
		w.config.Logger.WithFields(logrus.Fields{
			"action": "commit",
			"path":   path,
		}).WithError(err).Warn("commit failed")
		return err
	}
	return nil
}

func (w *Writer) commit(path string) error {
	hdr := newHeader(w.config.HashAlgorithm, w.compression)
	activeMask := w.compression.ActiveMask()

	// Encode payloads concurrently; they are written in export order below.
	payloads := make([]*PayloadRecord, len(w.order))
	var eg errgroup.Group
	eg.SetLimit(w.config.Workers)
	for i, g := range w.order {
		eg.Go(func() error {
			raw, err := encodeGrid(g, activeMask)
			if err != nil {
				return err
			}
			data, err := pack(raw, w.compression)
			if err != nil {
				return fmt.Errorf("grid %q: %w", g.name, err)
			}
			payloads[i] = &PayloadRecord{
				Type:      TypePayload,
				ID:        hash(g.name, hdr.Algorithm),
				Timestamp: hdr.Timestamp,
				Size:      len(raw),
				Checksum:  checksum(raw),
				Data:      data,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := w.writeContainer(f, hdr, payloads); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("commit: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit: %w", err)
	}

	w.config.Logger.WithFields(logrus.Fields{
		"action":      "commit",
		"path":        path,
		"grids":       len(w.order),
		"metadata":    w.meta.Len(),
		"compression": w.compression.String(),
		"uuid":        hdr.UUID,
	}).Debug("container written")
	return nil
}

func (w *Writer) writeContainer(f *os.File, hdr *Header, payloads []*PayloadRecord) error {
	buf, err := hdr.encode()
	if err != nil {
		return err
	}
	rw := newRecordWriter(f, w.config.ReadBuffer)
	if _, err := rw.bw.Write(buf); err != nil {
		return err
	}
	rw.off = HeaderSize

	if _, err := rw.record(&MetaRecord{
		Type:      TypeMeta,
		ID:        hash(metaID, hdr.Algorithm),
		Timestamp: hdr.Timestamp,
		Meta:      w.meta.entries(),
	}); err != nil {
		return err
	}

	for i, g := range w.order {
		offset, err := rw.record(payloads[i])
		if err != nil {
			return fmt.Errorf("grid %q: %w", g.name, err)
		}
		if _, err := rw.record(&GridRecord{
			Type:       TypeGrid,
			ID:         payloads[i].ID,
			Timestamp:  hdr.Timestamp,
			Name:       g.name,
			Kind:       g.kind.String(),
			Resolution: g.res,
			Transform:  g.transform,
			Background: background(g),
			Voxels:     g.data.ActiveVoxelCount(),
			Leaves:     g.data.LeafCount(),
			Meta:       g.meta.entries(),
			Offset:     offset,
		}); err != nil {
			return fmt.Errorf("grid %q: %w", g.name, err)
		}
	}

	if err := rw.flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Close releases every grid owned by the writer. Closing twice is a
// no-op.
func (w *Writer) Close() error {
	if w.state == writerClosed {
		return nil
	}
	w.state = writerClosed
	for _, g := range w.order {
		g.release()
	}
	clear(w.grids)
	w.order = nil
	return nil
}
