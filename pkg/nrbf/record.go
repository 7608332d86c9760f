package nrbf

// Record is one record of an NRBF stream. The set of implementations is
// closed; callers switch on the concrete type.
type Record interface {
	RecordType() RecordType
	encode(w *RecordWriter)
}

// ObjectRecord is a record that introduces an object with an id that other
// records may reference.
type ObjectRecord interface {
	Record
	ObjectID() int32
}

// SerializationHeader is the SerializedStreamHeader record that opens every
// stream.
type SerializationHeader struct {
	RootID       int32
	HeaderID     int32
	MajorVersion int32
	MinorVersion int32
}

// DefaultHeader is the header BinaryFormatter writes for a root with id 1.
var DefaultHeader = SerializationHeader{RootID: 1, HeaderID: 1, MajorVersion: 1, MinorVersion: 0}

func (*SerializationHeader) RecordType() RecordType { return RecordSerializedStreamHeader }

func (r *SerializationHeader) decodeFields(c *cursor) {
	r.RootID = c.int32()
	r.HeaderID = c.int32()
	r.MajorVersion = c.int32()
	r.MinorVersion = c.int32()
}

func (r *SerializationHeader) encode(w *RecordWriter) {
	w.buf.tag(RecordSerializedStreamHeader)
	w.buf.int32(r.RootID)
	w.buf.int32(r.HeaderID)
	w.buf.int32(r.MajorVersion)
	w.buf.int32(r.MinorVersion)
}

// BinaryLibrary names an assembly. Its id shares the object id space.
type BinaryLibrary struct {
	ID   int32
	Name string
}

func (*BinaryLibrary) RecordType() RecordType { return RecordBinaryLibrary }
func (r *BinaryLibrary) ObjectID() int32      { return r.ID }

func (r *BinaryLibrary) decodeFields(c *cursor) {
	r.ID = c.int32()
	r.Name = c.string()
}

func (r *BinaryLibrary) encode(w *RecordWriter) {
	w.buf.tag(RecordBinaryLibrary)
	w.buf.int32(r.ID)
	w.buf.string(r.Name)
}

// BinaryObjectString is a string object.
type BinaryObjectString struct {
	ID    int32
	Value string
}

func (*BinaryObjectString) RecordType() RecordType { return RecordBinaryObjectString }
func (r *BinaryObjectString) ObjectID() int32      { return r.ID }

func (r *BinaryObjectString) decodeFields(c *cursor) {
	r.ID = c.int32()
	r.Value = c.string()
}

func (r *BinaryObjectString) encode(w *RecordWriter) {
	w.buf.tag(RecordBinaryObjectString)
	w.buf.int32(r.ID)
	w.buf.string(r.Value)
}

// MemberPrimitiveTyped is a primitive value in a slot declared as Object or
// as a system class.
type MemberPrimitiveTyped struct {
	Type  PrimitiveType
	Value any
}

func (*MemberPrimitiveTyped) RecordType() RecordType { return RecordMemberPrimitiveTyped }

func (r *MemberPrimitiveTyped) encode(w *RecordWriter) {
	w.buf.tag(RecordMemberPrimitiveTyped)
	if !r.Type.IsValue() {
		w.buf.fail(invalidArgumentf("unsupported primitive kind %s", r.Type))
		return
	}
	w.buf.uint8(uint8(r.Type))
	w.buf.primitive(r.Type, r.Value)
}

// MemberReference refers to an object record by id. The target is resolved
// once the whole stream has been read.
type MemberReference struct {
	IDRef  int32
	target ObjectRecord
}

func (*MemberReference) RecordType() RecordType { return RecordMemberReference }

// Target returns the referenced record, or nil before resolution.
func (r *MemberReference) Target() ObjectRecord { return r.target }

func (r *MemberReference) encode(w *RecordWriter) {
	w.buf.tag(RecordMemberReference)
	w.buf.int32(r.IDRef)
}

// ObjectNull is a single null value.
type ObjectNull struct{}

func (*ObjectNull) RecordType() RecordType { return RecordObjectNull }
func (*ObjectNull) encode(w *RecordWriter) { w.buf.tag(RecordObjectNull) }

// ObjectNullMultiple256 is a run of up to 255 nulls in an array.
type ObjectNullMultiple256 struct {
	Count uint8
}

func (*ObjectNullMultiple256) RecordType() RecordType { return RecordObjectNullMultiple256 }

func (r *ObjectNullMultiple256) encode(w *RecordWriter) {
	w.buf.tag(RecordObjectNullMultiple256)
	w.buf.uint8(r.Count)
}

// ObjectNullMultiple is a run of nulls in an array.
type ObjectNullMultiple struct {
	Count int32
}

func (*ObjectNullMultiple) RecordType() RecordType { return RecordObjectNullMultiple }

func (r *ObjectNullMultiple) encode(w *RecordWriter) {
	w.buf.tag(RecordObjectNullMultiple)
	w.buf.int32(r.Count)
}

// MessageEnd terminates the stream.
type MessageEnd struct{}

func (*MessageEnd) RecordType() RecordType { return RecordMessageEnd }
func (*MessageEnd) encode(w *RecordWriter) { w.buf.tag(RecordMessageEnd) }

// nullCount returns the number of null slots r stands for, or 0 if r is not
// a null record.
func nullCount(r any) int {
	switch r := r.(type) {
	case *ObjectNull:
		return 1
	case *ObjectNullMultiple256:
		return int(r.Count)
	case *ObjectNullMultiple:
		return int(r.Count)
	}
	return 0
}

// nullRun returns the smallest record for a run of n nulls.
func nullRun(n int) Record {
	switch {
	case n == 1:
		return &ObjectNull{}
	case n <= 0xff:
		return &ObjectNullMultiple256{Count: uint8(n)}
	}
	return &ObjectNullMultiple{Count: int32(n)}
}
