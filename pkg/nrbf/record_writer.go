package nrbf

import (
	"fmt"
	"io"
)

type countedWriter struct {
	w io.Writer
	n int64
}

func (cw *countedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// RecordWriter writes an NRBF stream record by record. Libraries declared
// with DeclareLibrary are written on demand, immediately before the first
// class or array record that refers to them.
type RecordWriter struct {
	out      *countedWriter
	buf      encbuf
	declared map[int32]string
	emitted  map[int32]bool
	ended    bool
	closed   bool
}

// NewRecordWriter initializes a writer and writes the stream header.
func NewRecordWriter(out io.Writer, header SerializationHeader) (*RecordWriter, error) {
	w := &RecordWriter{
		out:      &countedWriter{w: out},
		declared: make(map[int32]string),
		emitted:  make(map[int32]bool),
	}
	if err := w.write(&header); err != nil {
		return nil, fmt.Errorf("write stream header: %w", err)
	}
	return w, nil
}

// Offset returns the number of bytes written so far.
func (w *RecordWriter) Offset() int64 {
	return w.out.n
}

// DeclareLibrary registers a library for on-demand emission.
func (w *RecordWriter) DeclareLibrary(id int32, name string) error {
	if id == 0 {
		return invalidArgumentf("library id 0 is reserved")
	}
	if prev, ok := w.declared[id]; ok && prev != name {
		return invalidArgumentf("library %d declared as both %q and %q", id, prev, name)
	}
	w.declared[id] = name
	return nil
}

// WriteRecord appends one top-level record with everything nested in it.
func (w *RecordWriter) WriteRecord(r Record) error {
	if w.closed || w.ended {
		return fmt.Errorf("record writer already finished")
	}
	switch r := r.(type) {
	case *SerializationHeader:
		return invalidArgumentf("stream header already written")
	case *BinaryLibrary:
		if err := w.DeclareLibrary(r.ID, r.Name); err != nil {
			return err
		}
		if w.emitted[r.ID] {
			return nil
		}
		w.emitted[r.ID] = true
	case *MessageEnd:
		w.ended = true
	}
	return w.write(r)
}

// Close terminates the stream with MessageEnd unless one was already
// written. It does not close the underlying writer.
func (w *RecordWriter) Close() error {
	if w.closed {
		return nil
	}
	ended := w.ended
	w.ended = true
	w.closed = true
	if ended {
		return nil
	}
	return w.write(&MessageEnd{})
}

func (w *RecordWriter) write(r Record) error {
	w.buf = encbuf{b: w.buf.b[:0]}
	w.nested(r)
	if w.buf.err != nil {
		return fmt.Errorf("encode %s record: %w", r.RecordType(), w.buf.err)
	}
	if _, err := w.out.Write(w.buf.b); err != nil {
		return fmt.Errorf("write %s record: %w", r.RecordType(), err)
	}
	return nil
}

func (w *RecordWriter) nested(r Record) {
	if w.buf.err != nil {
		return
	}
	w.libraries(r)
	r.encode(w)
}

// libraries writes the pending library records r depends on.
func (w *RecordWriter) libraries(r Record) {
	var ids []int32
	switch r := r.(type) {
	case *ClassWithID:
	case ClassRecord:
		if id := r.Library(); id != 0 {
			ids = append(ids, id)
		}
		for _, mt := range r.MemberTypes() {
			if mt.BinaryType == BinaryTypeClass {
				ids = append(ids, mt.Class.LibraryID)
			}
		}
	case *BinaryArray:
		if r.ElementType.BinaryType == BinaryTypeClass {
			ids = append(ids, r.ElementType.Class.LibraryID)
		}
	}
	for _, id := range ids {
		if w.emitted[id] {
			continue
		}
		name, ok := w.declared[id]
		if !ok {
			w.buf.fail(invalidArgumentf("library %d was not declared", id))
			return
		}
		w.emitted[id] = true
		(&BinaryLibrary{ID: id, Name: name}).encode(w)
	}
}

// members writes the member values of a class record.
func (w *RecordWriter) members(r ClassRecord) {
	types := r.MemberTypes()
	values := r.Values()
	if len(values) != len(types) {
		w.buf.fail(invalidArgumentf("class %q has %d values for %d members", r.Info().Name, len(values), len(types)))
		return
	}
	for i, v := range values {
		w.value(types[i], v)
	}
}

// elements writes the element records of a non-primitive array.
func (w *RecordWriter) elements(mt MemberType, values []any) {
	for _, v := range values {
		w.value(mt, v)
	}
}

func (w *RecordWriter) value(mt MemberType, v any) {
	if w.buf.err != nil {
		return
	}
	if mt.BinaryType == BinaryTypePrimitive {
		w.buf.primitive(mt.Primitive, v)
		return
	}
	rec, ok := v.(Record)
	if !ok {
		w.buf.fail(invalidArgumentf("value of type %T in a %s slot is not a record", v, mt))
		return
	}
	w.nested(rec)
}
