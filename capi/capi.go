// Package capi is the flat, handle-based surface over densevdb.
//
// Hosts that cannot hold Go values (C, C++, scripting runtimes) talk to
// densevdb through opaque Handles and plain arrays. Every function returns
// a densevdb.Code and never panics; the message for the most recent
// failure is available from LastError. The cgo exports in
// cmd/libdensevdb are thin wrappers around this package.
//
// Grid handles belong to the writer that exported them. Releasing a writer
// invalidates its grid handles, including any still referenced as masks.
package capi

import (
	"github.com/jpl-au/densevdb"
)

// Configure sets the configuration used by sessions created afterwards.
func Configure(config densevdb.Config) {
	handles.mu.Lock()
	defer handles.mu.Unlock()
	handles.config = config
}

// GetEngineVersion returns the packed library version.
func GetEngineVersion() int32 {
	setLast(nil)
	return densevdb.EngineVersion()
}

// CreateWriter starts a write session.
func CreateWriter() Handle {
	setLast(nil)
	return handles.addWriter()
}

// ReleaseWriter discards a write session and every grid handle it issued.
func ReleaseWriter(w Handle) densevdb.Code {
	return call("release writer", func() error {
		wr, err := handles.dropWriter(w)
		if err != nil {
			return err
		}
		return wr.Close()
	})
}

// CreateReader starts a read session.
func CreateReader() Handle {
	setLast(nil)
	return handles.addReader()
}

// ReleaseReader discards a read session.
func ReleaseReader(r Handle) densevdb.Code {
	return call("release reader", func() error {
		rd, err := handles.dropReader(r)
		if err != nil {
			return err
		}
		return rd.Close()
	})
}

// OpenReader loads the container at path into a read session.
func OpenReader(r Handle, path string) densevdb.Code {
	return call("open reader", func() error {
		rd, err := handles.reader(r)
		if err != nil {
			return err
		}
		return rd.Open(path)
	})
}

// CommitWriter writes the session to path. The session accepts no further
// changes afterwards, whether or not the commit succeeded.
func CommitWriter(w Handle, path string) densevdb.Code {
	return call("commit writer", func() error {
		wr, err := handles.writer(w)
		if err != nil {
			return err
		}
		return wr.Commit(path)
	})
}

// SetCompression selects the codec from a host preference flag:
// 0 zip, 1 blosc, anything else none.
func SetCompression(w Handle, flag int32) densevdb.Code {
	return call("set compression", func() error {
		wr, err := handles.writer(w)
		if err != nil {
			return err
		}
		return wr.SetCompression(densevdb.SelectCompression(int(flag)))
	})
}

func resolution(res [3]int32) densevdb.Resolution {
	return densevdb.Resolution{int(res[0]), int(res[1]), int(res[2])}
}

// export resolves the writer and optional mask, runs fn and registers the
// resulting grid.
func export(op string, w, mask Handle, fn func(*densevdb.Writer, []densevdb.ExportOption) (*densevdb.Grid, error)) (Handle, densevdb.Code) {
	var h Handle
	code := call(op, func() error {
		wr, err := handles.writer(w)
		if err != nil {
			return err
		}
		m, err := handles.grid(mask)
		if err != nil {
			return err
		}
		var opts []densevdb.ExportOption
		if m != nil {
			opts = append(opts, densevdb.WithMask(m))
		}
		g, err := fn(wr, opts)
		if err != nil {
			return err
		}
		h = handles.addGrid(g, w)
		return nil
	})
	return h, code
}

// ExportScalarFloat builds a float grid from data and adds it to the
// writer. mask is zero or a grid handle whose active cells restrict the
// export.
func ExportScalarFloat(w Handle, name string, data []float32, res [3]int32, xform [4][4]float32, mask Handle) (Handle, densevdb.Code) {
	return export("export float", w, mask, func(wr *densevdb.Writer, opts []densevdb.ExportOption) (*densevdb.Grid, error) {
		return wr.ExportFloat(name, data, resolution(res), densevdb.Transform(xform), opts...)
	})
}

// ExportScalarInt builds an int32 grid from data and adds it to the writer.
func ExportScalarInt(w Handle, name string, data []int32, res [3]int32, xform [4][4]float32, mask Handle) (Handle, densevdb.Code) {
	return export("export int", w, mask, func(wr *densevdb.Writer, opts []densevdb.ExportOption) (*densevdb.Grid, error) {
		return wr.ExportInt(name, data, resolution(res), densevdb.Transform(xform), opts...)
	})
}

// ExportVector builds a 3-component grid from three planar arrays.
func ExportVector(w Handle, name string, x, y, z []float32, res [3]int32, xform [4][4]float32, vecType int16, isColor bool, mask Handle) (Handle, densevdb.Code) {
	return export("export vector", w, mask, func(wr *densevdb.Writer, opts []densevdb.ExportOption) (*densevdb.Grid, error) {
		return wr.ExportVector(name, x, y, z, resolution(res), densevdb.Transform(xform), densevdb.VecType(vecType), isColor, opts...)
	})
}

// ImportScalarFloat fills out with the named float grid.
func ImportScalarFloat(r Handle, name string, out []float32, res [3]int32) densevdb.Code {
	return call("import float", func() error {
		rd, err := handles.reader(r)
		if err != nil {
			return err
		}
		return rd.ImportFloat(name, out, resolution(res))
	})
}

// ImportScalarInt fills out with the named int32 grid.
func ImportScalarInt(r Handle, name string, out []int32, res [3]int32) densevdb.Code {
	return call("import int", func() error {
		rd, err := handles.reader(r)
		if err != nil {
			return err
		}
		return rd.ImportInt(name, out, resolution(res))
	})
}

// ImportVector fills x, y and z with the components of the named grid.
func ImportVector(r Handle, name string, x, y, z []float32, res [3]int32) densevdb.Code {
	return call("import vector", func() error {
		rd, err := handles.reader(r)
		if err != nil {
			return err
		}
		return rd.ImportVector(name, x, y, z, resolution(res))
	})
}

// withWriter runs fn against a resolved writer.
func withWriter(op string, w Handle, fn func(*densevdb.Writer) error) densevdb.Code {
	return call(op, func() error {
		wr, err := handles.writer(w)
		if err != nil {
			return err
		}
		return fn(wr)
	})
}

// WriterSetMetaFloat stores a float file metadata entry.
func WriterSetMetaFloat(w Handle, name string, v float32) densevdb.Code {
	return withWriter("set meta float", w, func(wr *densevdb.Writer) error { return wr.SetFloat(name, v) })
}

// WriterSetMetaInt stores an int32 file metadata entry.
func WriterSetMetaInt(w Handle, name string, v int32) densevdb.Code {
	return withWriter("set meta int", w, func(wr *densevdb.Writer) error { return wr.SetInt(name, v) })
}

// WriterSetMetaVec3f stores a 3-float file metadata entry.
func WriterSetMetaVec3f(w Handle, name string, v [3]float32) densevdb.Code {
	return withWriter("set meta vec3f", w, func(wr *densevdb.Writer) error { return wr.SetVec3f(name, v) })
}

// WriterSetMetaVec3i stores a 3-int file metadata entry.
func WriterSetMetaVec3i(w Handle, name string, v [3]int32) densevdb.Code {
	return withWriter("set meta vec3i", w, func(wr *densevdb.Writer) error { return wr.SetVec3i(name, v) })
}

// WriterSetMetaMat4 stores a 4×4 matrix file metadata entry in row order.
func WriterSetMetaMat4(w Handle, name string, v [4][4]float32) densevdb.Code {
	return withWriter("set meta mat4", w, func(wr *densevdb.Writer) error { return wr.SetMat4(name, densevdb.Transform(v)) })
}

// getMeta resolves a reader and stores the result of get in *out. On
// failure *out keeps its zero value, and so does every getter below:
// a missing name is CodeNotFound, a different shape CodeTypeMismatch.
func getMeta[T any](op string, r Handle, out *T, get func(*densevdb.Reader) (T, error)) densevdb.Code {
	return call(op, func() error {
		rd, err := handles.reader(r)
		if err != nil {
			return err
		}
		v, err := get(rd)
		if err != nil {
			return err
		}
		*out = v
		return nil
	})
}

// ReaderGetMetaFloat returns a float file metadata entry.
func ReaderGetMetaFloat(r Handle, name string) (float32, densevdb.Code) {
	var v float32
	code := getMeta("get meta float", r, &v, func(rd *densevdb.Reader) (float32, error) { return rd.Float(name) })
	return v, code
}

// ReaderGetMetaInt returns an int32 file metadata entry.
func ReaderGetMetaInt(r Handle, name string) (int32, densevdb.Code) {
	var v int32
	code := getMeta("get meta int", r, &v, func(rd *densevdb.Reader) (int32, error) { return rd.Int(name) })
	return v, code
}

// ReaderGetMetaVec3f returns a 3-float file metadata entry.
func ReaderGetMetaVec3f(r Handle, name string) ([3]float32, densevdb.Code) {
	var v [3]float32
	code := getMeta("get meta vec3f", r, &v, func(rd *densevdb.Reader) ([3]float32, error) { return rd.Vec3f(name) })
	return v, code
}

// ReaderGetMetaVec3i returns a 3-int file metadata entry.
func ReaderGetMetaVec3i(r Handle, name string) ([3]int32, densevdb.Code) {
	var v [3]int32
	code := getMeta("get meta vec3i", r, &v, func(rd *densevdb.Reader) ([3]int32, error) { return rd.Vec3i(name) })
	return v, code
}

// ReaderGetMetaMat4 returns a 4×4 matrix file metadata entry.
func ReaderGetMetaMat4(r Handle, name string) ([4][4]float32, densevdb.Code) {
	var v [4][4]float32
	code := getMeta("get meta mat4", r, &v, func(rd *densevdb.Reader) ([4][4]float32, error) {
		m, err := rd.Mat4(name)
		return [4][4]float32(m), err
	})
	return v, code
}

// UpdateFluidTransform rewrites the transform of every grid in the file at
// path: grids whose name contains "High" take high, the rest take base.
func UpdateFluidTransform(path string, base, high [4][4]float32) densevdb.Code {
	return call("update fluid transform", func() error {
		return densevdb.UpdateTransform(path, densevdb.Transform(base), densevdb.Transform(high), handles.settings())
	})
}

// ListGridNamesAndTypes returns parallel name and type slices for every
// grid in the file at path. On failure both are nil.
func ListGridNamesAndTypes(path string) (names, types []string, code densevdb.Code) {
	code = call("list grids", func() error {
		infos, err := densevdb.ListGrids(path, handles.settings())
		if err != nil {
			return err
		}
		names = make([]string, len(infos))
		types = make([]string, len(infos))
		for i, info := range infos {
			names[i] = info.Name
			types[i] = info.Type
		}
		return nil
	})
	if code != densevdb.CodeOK {
		return nil, nil, code
	}
	return names, types, code
}
