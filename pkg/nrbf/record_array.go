package nrbf

// ArrayRecord is implemented by the four array records.
type ArrayRecord interface {
	ObjectRecord
	// Len returns the total number of elements, counting each null of a
	// null run.
	Len() int
	// Element returns the element type.
	Element() MemberType
}

// ArraySinglePrimitive is a one-dimensional array of primitives. Values holds
// a typed slice such as []int32.
type ArraySinglePrimitive struct {
	ID     int32
	Type   PrimitiveType
	Values any
}

func (*ArraySinglePrimitive) RecordType() RecordType { return RecordArraySinglePrimitive }
func (r *ArraySinglePrimitive) ObjectID() int32      { return r.ID }
func (r *ArraySinglePrimitive) Len() int             { return primitiveSliceLen(r.Values) }
func (r *ArraySinglePrimitive) Element() MemberType  { return PrimitiveMember(r.Type) }

func (r *ArraySinglePrimitive) encode(w *RecordWriter) {
	w.buf.tag(RecordArraySinglePrimitive)
	w.buf.int32(r.ID)
	w.buf.int32(int32(r.Len()))
	if !r.Type.IsValue() {
		w.buf.fail(invalidArgumentf("unsupported primitive kind %s", r.Type))
		return
	}
	w.buf.uint8(uint8(r.Type))
	w.buf.primitiveArray(r.Type, r.Values)
}

// ArraySingleObject is a one-dimensional object array. Values holds one
// record per element, except that null runs cover several elements.
type ArraySingleObject struct {
	ID     int32
	Values []any
}

func (*ArraySingleObject) RecordType() RecordType { return RecordArraySingleObject }
func (r *ArraySingleObject) ObjectID() int32      { return r.ID }
func (r *ArraySingleObject) Len() int             { return elementCount(r.Values) }
func (r *ArraySingleObject) Element() MemberType  { return ObjectMember }

func (r *ArraySingleObject) encode(w *RecordWriter) {
	w.buf.tag(RecordArraySingleObject)
	w.buf.int32(r.ID)
	w.buf.int32(int32(r.Len()))
	w.elements(ObjectMember, r.Values)
}

// ArraySingleString is a one-dimensional string array, laid out like
// ArraySingleObject.
type ArraySingleString struct {
	ID     int32
	Values []any
}

func (*ArraySingleString) RecordType() RecordType { return RecordArraySingleString }
func (r *ArraySingleString) ObjectID() int32      { return r.ID }
func (r *ArraySingleString) Len() int             { return elementCount(r.Values) }
func (r *ArraySingleString) Element() MemberType  { return StringMember }

func (r *ArraySingleString) encode(w *RecordWriter) {
	w.buf.tag(RecordArraySingleString)
	w.buf.int32(r.ID)
	w.buf.int32(int32(r.Len()))
	w.elements(StringMember, r.Values)
}

// BinaryArray is the general array record: any rank, lower bounds and
// element type. Values holds the elements in row-major order, as raw
// primitives when the element type is Primitive and as records otherwise.
type BinaryArray struct {
	ID          int32
	ArrayType   BinaryArrayType
	Lengths     []int32
	LowerBounds []int32 // only for the Offset array types
	ElementType MemberType
	Values      []any
}

const maxArrayRank = 32

func (*BinaryArray) RecordType() RecordType { return RecordBinaryArray }
func (r *BinaryArray) ObjectID() int32      { return r.ID }
func (r *BinaryArray) Element() MemberType  { return r.ElementType }

// Len returns the product of the dimension lengths.
func (r *BinaryArray) Len() int {
	n := 1
	for _, l := range r.Lengths {
		n *= int(l)
	}
	return n
}

func (r *BinaryArray) encode(w *RecordWriter) {
	w.buf.tag(RecordBinaryArray)
	w.buf.int32(r.ID)
	if !r.ArrayType.valid() {
		w.buf.fail(invalidArgumentf("invalid array type %d", uint8(r.ArrayType)))
		return
	}
	w.buf.uint8(uint8(r.ArrayType))
	w.buf.int32(int32(len(r.Lengths)))
	for _, l := range r.Lengths {
		w.buf.int32(l)
	}
	if r.ArrayType.HasLowerBounds() {
		if len(r.LowerBounds) != len(r.Lengths) {
			w.buf.fail(invalidArgumentf("array has %d lower bounds for rank %d", len(r.LowerBounds), len(r.Lengths)))
			return
		}
		for _, b := range r.LowerBounds {
			w.buf.int32(b)
		}
	}
	w.buf.memberTypeInfo(MemberTypeInfo{r.ElementType})
	if r.ElementType.BinaryType == BinaryTypePrimitive {
		for _, v := range r.Values {
			w.buf.primitive(r.ElementType.Primitive, v)
		}
		return
	}
	w.elements(r.ElementType, r.Values)
}

// elementCount sums the element slots covered by values.
func elementCount(values []any) int {
	n := 0
	for _, v := range values {
		if c := nullCount(v); c > 0 {
			n += c
		} else {
			n++
		}
	}
	return n
}
