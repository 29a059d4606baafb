// Container compaction.
//
// Every transform update leaves the superseded descriptors behind as
// retired records, and an interrupted update can leave the dirty flag set
// with two live descriptors for the same grid. Compact rewrites the
// container with only the live view: the last metadata record, then each
// grid's payload followed by its current descriptor, exactly the layout a
// fresh commit produces. Payload lines are copied byte for byte; only the
// descriptors are re-encoded because their payload offsets change.
//
// The rewrite goes to <path>.tmp under an exclusive lock on the original
// and is renamed into place, so the original is intact until the rename.
package densevdb

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// CompactStats reports what a compaction removed.
type CompactStats struct {
	Grids   int   // Live grids written
	Dropped int   // Retired, superseded or orphaned records discarded
	Before  int64 // File size before
	After   int64 // File size after
}

// Compact rewrites the container at path without retired records and
// clears its dirty flag. File identity, compression and voxel data are
// preserved.
func Compact(path string, config Config) (CompactStats, error) {
	config = config.withDefaults()
	var stats CompactStats
	err := guard("compact", func() error {
		var err error
		stats, err = compact(path, config)
		return err
	})
	if err != nil {
		return CompactStats{}, fmt.Errorf("compact %s: %w", path, err)
	}

	config.Logger.WithFields(logrus.Fields{
		"action":  "compact",
		"path":    path,
		"grids":   stats.Grids,
		"dropped": stats.Dropped,
		"before":  stats.Before,
		"after":   stats.After,
	}).Debug("container compacted")
	return stats, nil
}

func compact(path string, config Config) (CompactStats, error) {
	var stats CompactStats

	f, release, err := openLocked(path, os.O_RDWR, LockExclusive)
	if err != nil {
		return stats, err
	}
	defer release()

	hdr, err := header(f)
	if err != nil {
		return stats, err
	}
	if hdr.Error != 0 {
		config.Logger.WithFields(logrus.Fields{
			"action": "compact",
			"path":   path,
		}).Warn("compacting a dirty container")
	}

	var total int
	if err := records(f, config, func(int64, []byte) error {
		total++
		return nil
	}); err != nil {
		return stats, err
	}
	cat, err := catalogue(f, config)
	if err != nil {
		return stats, err
	}
	if stats.Before, err = size(f); err != nil {
		return stats, err
	}

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return stats, err
	}
	written, err := rewrite(f, out, hdr, cat, config)
	if err == nil {
		stats.After, err = size(out)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return stats, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return stats, err
	}

	stats.Grids = len(cat.grids)
	stats.Dropped = max(total-written, 0)
	return stats, nil
}

// rewrite streams the live view of src into dst and returns the number of
// records written.
func rewrite(src, dst *os.File, hdr *Header, cat *catalog, config Config) (int, error) {
	clean := *hdr
	clean.Error = 0
	clean.Timestamp = now()
	buf, err := clean.encode()
	if err != nil {
		return 0, err
	}

	rw := newRecordWriter(dst, config.ReadBuffer)
	if _, err := rw.bw.Write(buf); err != nil {
		return 0, err
	}
	rw.off = HeaderSize
	written := 0

	meta := cat.meta
	if meta == nil {
		meta = &MetaRecord{Type: TypeMeta, ID: hash(metaID, hdr.Algorithm), Timestamp: clean.Timestamp}
	}
	if _, err := rw.record(meta); err != nil {
		return 0, err
	}
	written++

	for _, e := range cat.grids {
		data, err := line(src, e.rec.Offset)
		if err != nil {
			return 0, fmt.Errorf("grid %q: %w", e.rec.Name, err)
		}
		if !valid(data) || kindOf(data) != TypePayload {
			return 0, fmt.Errorf("grid %q: %w: descriptor points at offset %d which is not a payload", e.rec.Name, ErrCorruptRecord, e.rec.Offset)
		}
		offset, err := rw.raw(data)
		if err != nil {
			return 0, err
		}

		rec := *e.rec
		rec.Offset = offset
		if _, err := rw.record(&rec); err != nil {
			return 0, fmt.Errorf("grid %q: %w", e.rec.Name, err)
		}
		written += 2
	}

	if err := rw.flush(); err != nil {
		return 0, err
	}
	return written, dst.Sync()
}
