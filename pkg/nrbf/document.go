package nrbf

import (
	"fmt"
	"io"
)

// Document is a decoded stream: its header, the record graph and the root
// record. It is read-only; Value builds a fresh value tree on every call.
type Document struct {
	Header  SerializationHeader
	Root    ObjectRecord
	records *RecordMap
	top     []Record
	ids     []int32
}

// Resolve returns the record bound to id.
func (d *Document) Resolve(id int32) (ObjectRecord, error) {
	return d.records.Resolve(id)
}

// Records returns the id-to-record map, including libraries.
func (d *Document) Records() *RecordMap { return d.records }

// TopLevel returns the records that appeared directly between the header
// and MessageEnd, in stream order.
func (d *Document) TopLevel() []Record { return d.top }

// IDs returns the object ids in order of first appearance, counting
// references and excluding libraries.
func (d *Document) IDs() []int32 { return append([]int32(nil), d.ids...) }

// Value materializes the root record as a value tree of primitives, strings,
// slices, *Object and *Array values. Boxed primitives become plain values.
func (d *Document) Value() (any, error) {
	return newMaterializer(d.records).object(d.Root)
}

// WriteTo re-encodes the document. Top-level records keep their order and
// libraries that were nested inside other records are written before the
// first record that needs them.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countedWriter{w: w}
	rw, err := NewRecordWriter(cw, d.Header)
	if err != nil {
		return cw.n, err
	}
	for _, id := range d.records.IDs() {
		if lib, ok := d.records.records[id].(*BinaryLibrary); ok {
			if err := rw.DeclareLibrary(lib.ID, lib.Name); err != nil {
				return cw.n, err
			}
		}
	}
	for _, rec := range d.top {
		if err := rw.WriteRecord(rec); err != nil {
			return cw.n, fmt.Errorf("rewrite stream: %w", err)
		}
	}
	err = rw.Close()
	return cw.n, err
}
