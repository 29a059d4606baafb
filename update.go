// In-place transform updates.
//
// UpdateTransform rewrites the transform of every grid in an existing
// container without touching voxel data. For each live descriptor a copy
// carrying the new transform is appended at the tail, then the old
// descriptor is retired by patching its type byte from Grid (2) to
// Retired (3). Payload records are never rewritten: the new descriptor
// points at the same payload offset as the one it replaces.
//
// The dirty flag is raised before the first append and cleared once every
// descriptor has been replaced. A crash in between leaves both versions of
// a descriptor live; readers take the later one, so the file stays
// loadable and the update can simply be repeated.
package densevdb

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// highResTag marks grids that belong to the high-resolution simulation
// domain and take the high transform.
const highResTag = "High"

// UpdateTransform assigns high to every grid whose name contains "High"
// and base to every other grid of the container at path. The voxel_size
// grid metadata is refreshed to match.
func UpdateTransform(path string, base, high Transform, config Config) error {
	config = config.withDefaults()
	if err := base.Validate(); err != nil {
		return fmt.Errorf("update transform: base: %w", err)
	}
	if err := high.Validate(); err != nil {
		return fmt.Errorf("update transform: high: %w", err)
	}

	var n int
	err := guard("update transform", func() error {
		var err error
		n, err = updateTransform(path, base, high, config)
		return err
	})
	if err != nil {
		return fmt.Errorf("update transform %s: %w", path, err)
	}

	config.Logger.WithFields(logrus.Fields{
		"action": "update_transform",
		"path":   path,
		"grids":  n,
	}).Debug("transforms replaced")
	return nil
}

func updateTransform(path string, base, high Transform, config Config) (int, error) {
	f, release, err := openLocked(path, os.O_RDWR, LockExclusive)
	if err != nil {
		return 0, err
	}
	defer release()

	hdr, err := header(f)
	if err != nil {
		return 0, err
	}
	cat, err := catalogue(f, config)
	if err != nil {
		return 0, err
	}
	tail, err := size(f)
	if err != nil {
		return 0, err
	}

	// Build every replacement before the first write so a malformed
	// descriptor leaves the file untouched.
	lines := make([][]byte, len(cat.grids))
	ts := now()
	for i, e := range cat.grids {
		rec := *e.rec
		rec.Transform = base
		if strings.Contains(rec.Name, highResTag) {
			rec.Transform = high
		}
		rec.Timestamp = ts

		meta, err := metaFromEntries(rec.Meta)
		if err != nil {
			return 0, fmt.Errorf("grid %q: %w", rec.Name, err)
		}
		if err := meta.Set(metaVoxelSize, Vec3fValue(rec.Transform.VoxelSize())); err != nil {
			return 0, fmt.Errorf("grid %q: %w", rec.Name, err)
		}
		rec.Meta = meta.entries()

		if lines[i], err = json.Marshal(&rec); err != nil {
			return 0, fmt.Errorf("grid %q: %w", rec.Name, err)
		}
	}

	a := &appender{w: f, header: hdr, tail: tail, sync: config.SyncWrites}
	for i, e := range cat.grids {
		if _, err := a.raw(lines[i]); err != nil {
			return 0, fmt.Errorf("grid %q: %w", e.rec.Name, err)
		}
		if err := a.writeAt(e.offset+TypePos, []byte{'0' + TypeRetired}); err != nil {
			return 0, fmt.Errorf("grid %q: retire: %w", e.rec.Name, err)
		}
	}
	if err := a.finish(); err != nil {
		return 0, err
	}
	return len(cat.grids), nil
}
