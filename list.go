// Grid enumeration.
//
// Listing reads descriptors only. Payload records are skipped by their
// type byte without being parsed, so enumerating a container costs one
// pass over the file regardless of how much voxel data it holds.
package densevdb

import (
	"fmt"
	"os"
)

// Engine version reported by EngineVersion.
const (
	VersionMajor = 1
	VersionMinor = 2
	VersionPatch = 0
)

// EngineVersion returns the version packed as major<<24 | minor<<16 |
// patch<<8.
func EngineVersion() int32 {
	return VersionMajor<<24 | VersionMinor<<16 | VersionPatch<<8
}

// entry is a live descriptor and where it sits in the file.
type entry struct {
	rec    *GridRecord
	offset int64
}

// catalog is the live view of a container body.
type catalog struct {
	meta  *MetaRecord
	grids []entry
}

// catalogue walks the body once. The last metadata record wins, and when
// a name has several live descriptors (an update interrupted before the
// old one was retired) the later one wins while keeping the position of
// the first.
func catalogue(f *os.File, config Config) (*catalog, error) {
	var c catalog
	index := make(map[string]int)

	err := records(f, config, func(offset int64, data []byte) error {
		switch kindOf(data) {
		case TypeMeta:
			m, err := decodeMeta(data)
			if err != nil {
				return fmt.Errorf("offset %d: %w", offset, err)
			}
			c.meta = m
		case TypeGrid:
			g, err := decodeGrid(data)
			if err != nil {
				return fmt.Errorf("offset %d: %w", offset, err)
			}
			if i, ok := index[g.Name]; ok {
				c.grids[i] = entry{rec: g, offset: offset}
				return nil
			}
			index[g.Name] = len(c.grids)
			c.grids = append(c.grids, entry{rec: g, offset: offset})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListGrids returns the name and classified type of every grid in the
// container at path, in file order. Either every grid is reported or an
// error is returned.
func ListGrids(path string, config Config) ([]GridInfo, error) {
	config = config.withDefaults()
	var out []GridInfo
	err := guard("list", func() error {
		f, release, err := openLocked(path, os.O_RDONLY, LockShared)
		if err != nil {
			return err
		}
		defer release()

		if _, err := header(f); err != nil {
			return err
		}
		cat, err := catalogue(f, config)
		if err != nil {
			return err
		}

		out = make([]GridInfo, 0, len(cat.grids))
		for _, e := range cat.grids {
			kind, meta, err := describe(e.rec)
			if err != nil {
				return fmt.Errorf("grid %q: %w", e.rec.Name, err)
			}
			typ, err := classify(kind, &meta)
			if err != nil {
				return fmt.Errorf("grid %q: %w", e.rec.Name, err)
			}
			out = append(out, GridInfo{
				Name:         e.rec.Name,
				Type:         typ,
				Kind:         kind,
				Resolution:   e.rec.Resolution,
				ActiveVoxels: e.rec.Voxels,
				Bounds:       boundsOf(&meta),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return out, nil
}
