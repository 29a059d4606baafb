package densevdb

import (
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
)

// Config holds session configuration. Zero values are replaced with
// defaults when a session is created.
type Config struct {
	HashAlgorithm int                // 1=xxHash3, 2=FNV1a, 3=Blake2b
	ReadBuffer    int                // Initial scan buffer (default 64KB)
	MaxRecordSize int                // Largest metadata or descriptor record accepted on read (default 1GB)
	SyncWrites    bool               // fsync after each in-place edit
	Workers       int                // Parallel payload encoders on commit (default GOMAXPROCS)
	Logger        logrus.FieldLogger // Default discards
}

func (c Config) withDefaults() Config {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = AlgXXHash3
	}
	if c.ReadBuffer == 0 {
		c.ReadBuffer = 64 * 1024
	}
	if c.MaxRecordSize == 0 {
		c.MaxRecordSize = 1 << 30
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	return c
}
