// Command libdensevdb builds the C shared library:
//
//	go build -buildmode=c-shared -o libdensevdb.so ./cmd/libdensevdb
//
// Every function returns a status code (0 on success, see densevdb.Code)
// and never lets a Go panic cross into C. Null pointers are treated as
// empty input and reported as invalid arguments. Strings returned to C are
// allocated with malloc and must be released with DenseVDB_Free or
// DenseVDB_FreeNames.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"math"
	"unsafe"

	"github.com/jpl-au/densevdb"
	"github.com/jpl-au/densevdb/capi"
)

func main() {}

func status(code densevdb.Code) C.int32_t { return C.int32_t(code) }

func resolution(res *C.int32_t) [3]int32 {
	if res == nil {
		return [3]int32{}
	}
	r := unsafe.Slice((*int32)(unsafe.Pointer(res)), 3)
	return [3]int32{r[0], r[1], r[2]}
}

// maxCells bounds the buffers built from C pointers so that unsafe.Slice
// never sees a length whose byte size exceeds the address space.
const maxCells = min(math.MaxInt>>4, 1<<40)

// cells is the buffer length implied by res, or 0 if a dimension is not
// positive or the product exceeds maxCells. A zero length hands the capi
// layer a nil buffer, which it rejects as an invalid argument.
func cells(res [3]int32) int {
	n := 1
	for _, d := range res {
		if d <= 0 || n > maxCells/int(d) {
			return 0
		}
		n *= int(d)
	}
	return n
}

func floats(p *C.float, n int) []float32 {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(p)), n)
}

func ints(p *C.int32_t, n int) []int32 {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(p)), n)
}

func matrix(p *C.float) [4][4]float32 {
	var m [4][4]float32
	if p == nil {
		return m
	}
	v := floats(p, 16)
	for r := range 4 {
		copy(m[r][:], v[r*4:])
	}
	return m
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

//export DenseVDB_GetEngineVersion
func DenseVDB_GetEngineVersion() C.int32_t {
	return C.int32_t(capi.GetEngineVersion())
}

//export DenseVDB_LastError
func DenseVDB_LastError() *C.char {
	msg := capi.LastError()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

//export DenseVDB_Free
func DenseVDB_Free(p unsafe.Pointer) {
	C.free(p)
}

//export DenseVDB_CreateWriter
func DenseVDB_CreateWriter() C.uint64_t {
	return C.uint64_t(capi.CreateWriter())
}

//export DenseVDB_ReleaseWriter
func DenseVDB_ReleaseWriter(w C.uint64_t) C.int32_t {
	return status(capi.ReleaseWriter(capi.Handle(w)))
}

//export DenseVDB_CreateReader
func DenseVDB_CreateReader() C.uint64_t {
	return C.uint64_t(capi.CreateReader())
}

//export DenseVDB_ReleaseReader
func DenseVDB_ReleaseReader(r C.uint64_t) C.int32_t {
	return status(capi.ReleaseReader(capi.Handle(r)))
}

//export DenseVDB_OpenReader
func DenseVDB_OpenReader(r C.uint64_t, path *C.char) C.int32_t {
	return status(capi.OpenReader(capi.Handle(r), goString(path)))
}

//export DenseVDB_CommitWriter
func DenseVDB_CommitWriter(w C.uint64_t, path *C.char) C.int32_t {
	return status(capi.CommitWriter(capi.Handle(w), goString(path)))
}

//export DenseVDB_SetCompression
func DenseVDB_SetCompression(w C.uint64_t, flag C.int32_t) C.int32_t {
	return status(capi.SetCompression(capi.Handle(w), int32(flag)))
}

func grid(out *C.uint64_t, h capi.Handle, code densevdb.Code) C.int32_t {
	if out != nil {
		*out = C.uint64_t(h)
	}
	return status(code)
}

//export DenseVDB_ExportScalarFloat
func DenseVDB_ExportScalarFloat(w C.uint64_t, name *C.char, data *C.float, res *C.int32_t, xform *C.float, mask C.uint64_t, out *C.uint64_t) C.int32_t {
	r := resolution(res)
	h, code := capi.ExportScalarFloat(capi.Handle(w), goString(name), floats(data, cells(r)), r, matrix(xform), capi.Handle(mask))
	return grid(out, h, code)
}

//export DenseVDB_ExportScalarInt
func DenseVDB_ExportScalarInt(w C.uint64_t, name *C.char, data *C.int32_t, res *C.int32_t, xform *C.float, mask C.uint64_t, out *C.uint64_t) C.int32_t {
	r := resolution(res)
	h, code := capi.ExportScalarInt(capi.Handle(w), goString(name), ints(data, cells(r)), r, matrix(xform), capi.Handle(mask))
	return grid(out, h, code)
}

//export DenseVDB_ExportVector
func DenseVDB_ExportVector(w C.uint64_t, name *C.char, x, y, z *C.float, res *C.int32_t, xform *C.float, vecType C.int16_t, isColor C.bool, mask C.uint64_t, out *C.uint64_t) C.int32_t {
	r := resolution(res)
	n := cells(r)
	h, code := capi.ExportVector(capi.Handle(w), goString(name), floats(x, n), floats(y, n), floats(z, n), r, matrix(xform), int16(vecType), bool(isColor), capi.Handle(mask))
	return grid(out, h, code)
}

//export DenseVDB_ImportScalarFloat
func DenseVDB_ImportScalarFloat(rd C.uint64_t, name *C.char, out *C.float, res *C.int32_t) C.int32_t {
	r := resolution(res)
	return status(capi.ImportScalarFloat(capi.Handle(rd), goString(name), floats(out, cells(r)), r))
}

//export DenseVDB_ImportScalarInt
func DenseVDB_ImportScalarInt(rd C.uint64_t, name *C.char, out *C.int32_t, res *C.int32_t) C.int32_t {
	r := resolution(res)
	return status(capi.ImportScalarInt(capi.Handle(rd), goString(name), ints(out, cells(r)), r))
}

//export DenseVDB_ImportVector
func DenseVDB_ImportVector(rd C.uint64_t, name *C.char, x, y, z *C.float, res *C.int32_t) C.int32_t {
	r := resolution(res)
	n := cells(r)
	return status(capi.ImportVector(capi.Handle(rd), goString(name), floats(x, n), floats(y, n), floats(z, n), r))
}

//export DenseVDB_WriterSetMetaFloat
func DenseVDB_WriterSetMetaFloat(w C.uint64_t, name *C.char, v C.float) C.int32_t {
	return status(capi.WriterSetMetaFloat(capi.Handle(w), goString(name), float32(v)))
}

//export DenseVDB_WriterSetMetaInt
func DenseVDB_WriterSetMetaInt(w C.uint64_t, name *C.char, v C.int32_t) C.int32_t {
	return status(capi.WriterSetMetaInt(capi.Handle(w), goString(name), int32(v)))
}

//export DenseVDB_WriterSetMetaVec3f
func DenseVDB_WriterSetMetaVec3f(w C.uint64_t, name *C.char, v *C.float) C.int32_t {
	if v == nil {
		return status(capi.Reject("set meta vec3f", "value"))
	}
	f := floats(v, 3)
	return status(capi.WriterSetMetaVec3f(capi.Handle(w), goString(name), [3]float32{f[0], f[1], f[2]}))
}

//export DenseVDB_WriterSetMetaVec3i
func DenseVDB_WriterSetMetaVec3i(w C.uint64_t, name *C.char, v *C.int32_t) C.int32_t {
	if v == nil {
		return status(capi.Reject("set meta vec3i", "value"))
	}
	i := ints(v, 3)
	return status(capi.WriterSetMetaVec3i(capi.Handle(w), goString(name), [3]int32{i[0], i[1], i[2]}))
}

//export DenseVDB_WriterSetMetaMat4
func DenseVDB_WriterSetMetaMat4(w C.uint64_t, name *C.char, v *C.float) C.int32_t {
	if v == nil {
		return status(capi.Reject("set meta mat4", "value"))
	}
	return status(capi.WriterSetMetaMat4(capi.Handle(w), goString(name), matrix(v)))
}

//export DenseVDB_ReaderGetMetaFloat
func DenseVDB_ReaderGetMetaFloat(r C.uint64_t, name *C.char, out *C.float) C.int32_t {
	v, code := capi.ReaderGetMetaFloat(capi.Handle(r), goString(name))
	if code == densevdb.CodeOK && out != nil {
		*out = C.float(v)
	}
	return status(code)
}

//export DenseVDB_ReaderGetMetaInt
func DenseVDB_ReaderGetMetaInt(r C.uint64_t, name *C.char, out *C.int32_t) C.int32_t {
	v, code := capi.ReaderGetMetaInt(capi.Handle(r), goString(name))
	if code == densevdb.CodeOK && out != nil {
		*out = C.int32_t(v)
	}
	return status(code)
}

//export DenseVDB_ReaderGetMetaVec3f
func DenseVDB_ReaderGetMetaVec3f(r C.uint64_t, name *C.char, out *C.float) C.int32_t {
	v, code := capi.ReaderGetMetaVec3f(capi.Handle(r), goString(name))
	if code == densevdb.CodeOK && out != nil {
		copy(floats(out, 3), v[:])
	}
	return status(code)
}

//export DenseVDB_ReaderGetMetaVec3i
func DenseVDB_ReaderGetMetaVec3i(r C.uint64_t, name *C.char, out *C.int32_t) C.int32_t {
	v, code := capi.ReaderGetMetaVec3i(capi.Handle(r), goString(name))
	if code == densevdb.CodeOK && out != nil {
		copy(ints(out, 3), v[:])
	}
	return status(code)
}

//export DenseVDB_ReaderGetMetaMat4
func DenseVDB_ReaderGetMetaMat4(r C.uint64_t, name *C.char, out *C.float) C.int32_t {
	v, code := capi.ReaderGetMetaMat4(capi.Handle(r), goString(name))
	if code == densevdb.CodeOK && out != nil {
		dst := floats(out, 16)
		for row := range 4 {
			copy(dst[row*4:], v[row][:])
		}
	}
	return status(code)
}

//export DenseVDB_UpdateFluidTransform
func DenseVDB_UpdateFluidTransform(path *C.char, base, high *C.float) C.int32_t {
	return status(capi.UpdateFluidTransform(goString(path), matrix(base), matrix(high)))
}

// DenseVDB_ListGridNamesAndTypes stores malloc'd arrays of count names and
// types in *names and *types. On failure both are set to NULL and count
// to 0. Release each array with DenseVDB_FreeNames.
//
//export DenseVDB_ListGridNamesAndTypes
func DenseVDB_ListGridNamesAndTypes(path *C.char, names, types ***C.char, count *C.int32_t) C.int32_t {
	if names != nil {
		*names = nil
	}
	if types != nil {
		*types = nil
	}
	if count != nil {
		*count = 0
	}
	n, t, code := capi.ListGridNamesAndTypes(goString(path))
	if code != densevdb.CodeOK {
		return status(code)
	}
	if names != nil {
		*names = cstrings(n)
	}
	if types != nil {
		*types = cstrings(t)
	}
	if count != nil {
		*count = C.int32_t(len(n))
	}
	return status(code)
}

//export DenseVDB_FreeNames
func DenseVDB_FreeNames(list **C.char, count C.int32_t) {
	if list == nil {
		return
	}
	for _, s := range unsafe.Slice(list, int(count)) {
		C.free(unsafe.Pointer(s))
	}
	C.free(unsafe.Pointer(list))
}

func cstrings(s []string) **C.char {
	if len(s) == 0 {
		return nil
	}
	list := (**C.char)(C.malloc(C.size_t(len(s)) * C.size_t(unsafe.Sizeof((*C.char)(nil)))))
	dst := unsafe.Slice(list, len(s))
	for i, v := range s {
		dst[i] = C.CString(v)
	}
	return list
}
