package nrbf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/containerd/log"
)

// DefaultMaxDepth bounds record nesting when DecodeOptions.MaxDepth is 0.
const DefaultMaxDepth = 256

const headerSize = 17

// maxNullElements bounds the elements a stream may cover with null runs, so
// that a few bytes cannot declare gigabytes of nulls.
const maxNullElements = 1 << 24

// DecodeOptions tunes Decode. The zero value is ready to use.
type DecodeOptions struct {
	// MaxDepth bounds record nesting. 0 means DefaultMaxDepth.
	MaxDepth int
	// MaxLength caps array lengths, member counts and string lengths. 0
	// leaves them bounded only by the input size.
	MaxLength int
	// StrictIDOrder requires object ids to increase in order of first
	// appearance, counting references. Library ids are exempt.
	StrictIDOrder bool
	// OnRecord observes each record once it has been fully read. Nested
	// records are reported before the records that contain them.
	OnRecord func(RecordEvent)
}

// RecordEvent describes one decoded record.
type RecordEvent struct {
	Offset int64
	Depth  int
	Record Record
}

// StartsWithPayloadHeader reports whether data begins with a
// SerializedStreamHeader record of a supported version.
func StartsWithPayloadHeader(data []byte) bool {
	if len(data) < headerSize || RecordType(data[0]) != RecordSerializedStreamHeader {
		return false
	}
	major := int32(binary.LittleEndian.Uint32(data[9:13]))
	minor := int32(binary.LittleEndian.Uint32(data[13:17]))
	return major == 1 && minor == 0
}

// DecodeReader reads r to EOF and decodes the payload.
func DecodeReader(r io.Reader, opts *DecodeOptions) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return Decode(data, opts)
}

// Decode decodes a complete stream. The stream must end with MessageEnd and
// nothing may follow it. Any violation fails the call without a partial
// result.
func Decode(data []byte, opts *DecodeOptions) (*Document, error) {
	d := newDecoder(data, opts)
	doc, err := d.decode()
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type pendingRef struct {
	ref     *MemberReference
	allowed AllowedRecords
	offset  int
}

type pendingLibrary struct {
	id     int32
	offset int
}

type decoder struct {
	c         *cursor
	opts      DecodeOptions
	records   *RecordMap
	refs      []pendingRef
	libraries []pendingLibrary
	seen      map[int32]struct{}
	order     []int32
	rootID    int32
	nulls     int
	trace     bool
}

func newDecoder(data []byte, opts *DecodeOptions) *decoder {
	d := &decoder{
		records: NewRecordMap(),
		seen:    make(map[int32]struct{}),
		trace:   log.GetLevel() >= log.TraceLevel,
	}
	if opts != nil {
		d.opts = *opts
	}
	if d.opts.MaxDepth <= 0 {
		d.opts.MaxDepth = DefaultMaxDepth
	}
	d.c = newCursor(data, d.opts.MaxLength)
	return d
}

func (d *decoder) decode() (*Document, error) {
	c := d.c
	tag := RecordType(c.uint8())
	if c.err != nil {
		return nil, c.err
	}
	if tag != RecordSerializedStreamHeader {
		return nil, formatErrorf(0, "stream starts with %s instead of a header", tag)
	}
	var header SerializationHeader
	header.decodeFields(c)
	if c.err != nil {
		return nil, c.err
	}
	if header.MajorVersion != 1 || header.MinorVersion != 0 {
		return nil, formatErrorf(0, "unsupported format version %d.%d", header.MajorVersion, header.MinorVersion)
	}
	d.rootID = header.RootID
	d.observe(0, 0, &header)

	var top []Record
	allowed := allowedTopLevel
	for {
		rec := d.record(allowed|allow(RecordMessageEnd), 1)
		if c.err != nil {
			return nil, c.err
		}
		if _, ok := rec.(*MessageEnd); ok {
			break
		}
		top = append(top, rec)
		if _, ok := rec.(*BinaryLibrary); ok {
			allowed = allowedAfterLibrary
		} else {
			allowed = allowedTopLevel
		}
	}
	if n := len(top); n > 0 {
		if _, ok := top[n-1].(*BinaryLibrary); ok {
			return nil, formatErrorf(c.off-1, "library record is not followed by a class or array")
		}
	}
	if c.remaining() > 0 {
		return nil, formatErrorf(c.off, "trailing data: %d bytes after MessageEnd", c.remaining())
	}
	if err := d.resolve(); err != nil {
		return nil, err
	}
	root, ok := d.records.Lookup(header.RootID)
	if _, isLib := root.(*BinaryLibrary); !ok || isLib {
		return nil, formatErrorf(1, "root id %d does not name an object", header.RootID)
	}
	return &Document{
		Header:  header,
		Root:    root,
		records: d.records,
		top:     top,
		ids:     d.order,
	}, nil
}

// resolve binds every reference to its target and checks the libraries
// named by member types, now that all ids are known.
func (d *decoder) resolve() error {
	for _, p := range d.refs {
		target, ok := d.records.Lookup(p.ref.IDRef)
		if !ok {
			return formatErrorf(p.offset, "unknown reference %d", p.ref.IDRef)
		}
		if _, isLib := target.(*BinaryLibrary); isLib || !p.allowed.Has(target.RecordType()) {
			return formatErrorf(p.offset, "reference %d to a %s record where %s is expected",
				p.ref.IDRef, target.RecordType(), p.allowed)
		}
		p.ref.target = target
	}
	for _, l := range d.libraries {
		if rec, ok := d.records.Lookup(l.id); !ok || rec.RecordType() != RecordBinaryLibrary {
			return formatErrorf(l.offset, "member type names undefined library %d", l.id)
		}
	}
	return nil
}

func (d *decoder) observe(offset, depth int, rec Record) {
	if d.trace {
		log.L.WithFields(log.Fields{
			"record": rec.RecordType().String(),
			"offset": offset,
			"depth":  depth,
		}).Trace("nrbf record")
	}
	if d.opts.OnRecord != nil {
		d.opts.OnRecord(RecordEvent{Offset: int64(offset), Depth: depth, Record: rec})
	}
}

// see tracks the first appearance of an object id.
func (d *decoder) see(offset int, id int32) {
	if _, ok := d.seen[id]; ok {
		return
	}
	if d.opts.StrictIDOrder {
		if len(d.order) == 0 && id != d.rootID {
			d.c.failAt(offset, "first object id %d is not the root id %d", id, d.rootID)
			return
		}
		if len(d.order) > 0 && id <= d.order[len(d.order)-1] {
			d.c.failAt(offset, "object id %d appears after id %d", id, d.order[len(d.order)-1])
			return
		}
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
}

func (d *decoder) bind(offset int, id int32, rec ObjectRecord) {
	c := d.c
	if c.err != nil {
		return
	}
	if id == 0 {
		c.failAt(offset, "invalid object id 0")
		return
	}
	if err := d.records.Bind(id, rec); err != nil {
		c.fail(&FormatError{Offset: int64(offset), Msg: fmt.Sprintf("object id %d already defined", id), Err: err})
		return
	}
	if rec.RecordType() != RecordBinaryLibrary {
		d.see(offset, id)
	}
}

// record reads one record whose type must be in allowed.
func (d *decoder) record(allowed AllowedRecords, depth int) Record {
	c := d.c
	if c.err != nil {
		return nil
	}
	start := c.off
	if depth > d.opts.MaxDepth {
		c.failAt(start, "records nested deeper than %d", d.opts.MaxDepth)
		return nil
	}
	t := RecordType(c.uint8())
	if c.err != nil {
		return nil
	}
	if _, known := recordTypeNames[t]; !known {
		c.failAt(start, "unknown record type %d", uint8(t))
		return nil
	}
	if t == RecordMethodCall || t == RecordMethodReturn {
		c.failAt(start, "unsupported %s record", t)
		return nil
	}
	if !allowed.Has(t) {
		c.failAt(start, "unexpected %s record, expected %s", t, allowed)
		return nil
	}

	var rec Record
	switch t {
	case RecordBinaryLibrary:
		r := &BinaryLibrary{}
		r.decodeFields(c)
		d.bind(start, r.ID, r)
		rec = r
	case RecordBinaryObjectString:
		r := &BinaryObjectString{}
		r.decodeFields(c)
		d.bind(start, r.ID, r)
		rec = r
	case RecordMemberPrimitiveTyped:
		r := &MemberPrimitiveTyped{Type: PrimitiveType(c.uint8())}
		if c.err == nil && !r.Type.IsValue() {
			c.failAt(start+1, "invalid primitive type %d", uint8(r.Type))
		}
		if c.err == nil {
			r.Value = c.primitive(r.Type)
		}
		rec = r
	case RecordMemberReference:
		r := &MemberReference{IDRef: c.int32()}
		if c.err == nil {
			d.refs = append(d.refs, pendingRef{ref: r, allowed: allowed, offset: start})
			d.see(start, r.IDRef)
		}
		rec = r
	case RecordObjectNull:
		rec = &ObjectNull{}
	case RecordObjectNullMultiple256:
		r := &ObjectNullMultiple256{Count: c.uint8()}
		if c.err == nil && r.Count == 0 {
			c.failAt(start, "empty null run")
		}
		rec = r
	case RecordObjectNullMultiple:
		r := &ObjectNullMultiple{Count: c.int32()}
		if c.err == nil && r.Count <= 0 {
			c.failAt(start, "invalid null run length %d", r.Count)
		}
		rec = r
	case RecordMessageEnd:
		rec = &MessageEnd{}
	case RecordClassWithID:
		rec = d.classWithID(start, depth)
	case RecordClassWithMembersAndTypes:
		rec = d.classWithMembersAndTypes(start, depth)
	case RecordSystemClassWithMembersAndTypes:
		rec = d.systemClassWithMembersAndTypes(start, depth)
	case RecordClassWithMembers:
		rec = d.classWithMembers(start, depth)
	case RecordSystemClassWithMembers:
		rec = d.systemClassWithMembers(start, depth)
	case RecordArraySinglePrimitive:
		rec = d.arraySinglePrimitive(start)
	case RecordArraySingleObject:
		rec = d.arraySingle(start, depth, RecordArraySingleObject)
	case RecordArraySingleString:
		rec = d.arraySingle(start, depth, RecordArraySingleString)
	case RecordBinaryArray:
		rec = d.binaryArray(start, depth)
	default:
		c.failAt(start, "unexpected %s record", t)
	}
	if c.err != nil {
		return nil
	}
	d.observe(start, depth, rec)
	return rec
}

// nested reads the record carrying a member or element value. Libraries may
// precede it; they are bound and skipped.
func (d *decoder) nested(allowed AllowedRecords, depth int) Record {
	for {
		rec := d.record(allowed, depth)
		if _, ok := rec.(*BinaryLibrary); !ok {
			return rec
		}
		allowed &= allowedAfterLibrary
	}
}

// value reads one member value declared as mt: raw bytes for primitives, a
// record otherwise.
func (d *decoder) value(mt MemberType, depth int) any {
	if mt.BinaryType == BinaryTypePrimitive {
		return d.c.primitive(mt.Primitive)
	}
	return d.nested(mt.Allowed(), depth)
}

func (d *decoder) members(r ClassRecord, depth int) []any {
	types := r.MemberTypes()
	values := make([]any, len(types))
	for i, mt := range types {
		values[i] = d.value(mt, depth+1)
		if d.c.err != nil {
			return nil
		}
	}
	return values
}

// elements reads n array elements of type mt. Null runs count for as many
// elements as they cover and may not overrun the array.
func (d *decoder) elements(mt MemberType, n, depth int) []any {
	c := d.c
	if mt.BinaryType == BinaryTypePrimitive {
		size := max(mt.Primitive.Size(), 1)
		if !c.need(n, size) {
			return nil
		}
		values := make([]any, n)
		for i := range values {
			values[i] = c.primitive(mt.Primitive)
			if c.err != nil {
				return nil
			}
		}
		return values
	}
	allowed := mt.Allowed() | allowedNullRuns
	values := make([]any, 0, min(n, c.remaining()))
	for filled := 0; filled < n; {
		start := c.off
		rec := d.nested(allowed, depth+1)
		if c.err != nil {
			return nil
		}
		k := max(nullCount(rec), 1)
		if k > n-filled {
			c.failAt(start, "null run of %d overflows array with %d elements left", k, n-filled)
			return nil
		}
		if k > 1 {
			d.nulls += k
			if d.nulls > maxNullElements {
				c.failAt(start, "null runs cover more than %d elements", maxNullElements)
				return nil
			}
		}
		filled += k
		values = append(values, rec)
	}
	return values
}

// library checks that a class record's library is already defined.
func (d *decoder) library(offset int, id int32) {
	if d.c.err != nil {
		return
	}
	if rec, ok := d.records.Lookup(id); !ok || rec.RecordType() != RecordBinaryLibrary {
		d.c.failAt(offset, "class refers to undefined library %d", id)
	}
}

// memberLibraries queues the libraries named by Class member types for
// checking after MessageEnd.
func (d *decoder) memberLibraries(offset int, types MemberTypeInfo) {
	for _, mt := range types {
		if mt.BinaryType == BinaryTypeClass {
			d.libraries = append(d.libraries, pendingLibrary{id: mt.Class.LibraryID, offset: offset})
		}
	}
}

func (d *decoder) classWithID(start, depth int) Record {
	c := d.c
	r := &ClassWithID{ID: c.int32(), MetadataID: c.int32()}
	if c.err != nil {
		return nil
	}
	meta, _ := d.records.Lookup(r.MetadataID)
	cr, ok := meta.(ClassRecord)
	if !ok {
		c.failAt(start, "class metadata id %d does not name a class record", r.MetadataID)
		return nil
	}
	if cw, ok := cr.(*ClassWithID); ok {
		cr = cw.metadata
	}
	r.metadata = cr
	d.bind(start, r.ID, r)
	r.MemberValues = d.members(r, depth)
	return r
}

func (d *decoder) classWithMembersAndTypes(start, depth int) Record {
	c := d.c
	r := &ClassWithMembersAndTypes{ClassInfo: c.classInfo()}
	r.Types = c.memberTypeInfo(len(r.MemberNames))
	r.LibraryID = c.int32()
	d.library(start, r.LibraryID)
	d.memberLibraries(start, r.Types)
	d.bind(start, r.ID, r)
	if c.err != nil {
		return nil
	}
	r.MemberValues = d.members(r, depth)
	return r
}

func (d *decoder) systemClassWithMembersAndTypes(start, depth int) Record {
	c := d.c
	r := &SystemClassWithMembersAndTypes{ClassInfo: c.classInfo()}
	r.Types = c.memberTypeInfo(len(r.MemberNames))
	d.memberLibraries(start, r.Types)
	d.bind(start, r.ID, r)
	if c.err != nil {
		return nil
	}
	r.MemberValues = d.members(r, depth)
	return r
}

func (d *decoder) classWithMembers(start, depth int) Record {
	c := d.c
	r := &ClassWithMembers{ClassInfo: c.classInfo()}
	r.LibraryID = c.int32()
	d.library(start, r.LibraryID)
	d.bind(start, r.ID, r)
	if c.err != nil {
		return nil
	}
	r.MemberValues = d.members(r, depth)
	return r
}

func (d *decoder) systemClassWithMembers(start, depth int) Record {
	c := d.c
	r := &SystemClassWithMembers{ClassInfo: c.classInfo()}
	d.bind(start, r.ID, r)
	if c.err != nil {
		return nil
	}
	r.MemberValues = d.members(r, depth)
	return r
}

func (d *decoder) arraySinglePrimitive(start int) Record {
	c := d.c
	r := &ArraySinglePrimitive{ID: c.int32()}
	n := c.count("array length")
	r.Type = PrimitiveType(c.uint8())
	if c.err == nil && !r.Type.IsValue() {
		c.failAt(c.off-1, "invalid primitive type %d", uint8(r.Type))
	}
	d.bind(start, r.ID, r)
	if c.err != nil {
		return nil
	}
	r.Values = c.primitiveArray(r.Type, n)
	return r
}

func (d *decoder) arraySingle(start, depth int, t RecordType) Record {
	c := d.c
	id := c.int32()
	n := c.count("array length")
	if c.err != nil {
		return nil
	}
	if t == RecordArraySingleString {
		r := &ArraySingleString{ID: id}
		d.bind(start, id, r)
		r.Values = d.elements(StringMember, n, depth)
		return r
	}
	r := &ArraySingleObject{ID: id}
	d.bind(start, id, r)
	r.Values = d.elements(ObjectMember, n, depth)
	return r
}

func (d *decoder) binaryArray(start, depth int) Record {
	c := d.c
	r := &BinaryArray{ID: c.int32(), ArrayType: BinaryArrayType(c.uint8())}
	rankOffset := c.off
	rank := c.int32()
	if c.err != nil {
		return nil
	}
	if !r.ArrayType.valid() {
		c.failAt(rankOffset-1, "invalid array type %d", uint8(r.ArrayType))
		return nil
	}
	if rank < 1 || rank > maxArrayRank {
		c.failAt(rankOffset, "invalid array rank %d", rank)
		return nil
	}
	switch r.ArrayType {
	case BinaryArraySingle, BinaryArrayJagged, BinaryArraySingleOffset, BinaryArrayJaggedOffset:
		if rank != 1 {
			c.failAt(rankOffset, "%s array with rank %d", r.ArrayType, rank)
			return nil
		}
	}
	total := int64(1)
	r.Lengths = make([]int32, rank)
	for i := range r.Lengths {
		n := c.count("array length")
		r.Lengths[i] = int32(n)
		total *= int64(n)
		if total > math.MaxInt32 {
			c.failAt(rankOffset, "array of more than %d elements", math.MaxInt32)
			return nil
		}
	}
	if c.maxLength > 0 && total > int64(c.maxLength) {
		c.failAt(rankOffset, "array of %d elements exceeds limit %d", total, c.maxLength)
		return nil
	}
	if r.ArrayType.HasLowerBounds() {
		r.LowerBounds = make([]int32, rank)
		for i := range r.LowerBounds {
			r.LowerBounds[i] = c.int32()
			if int64(r.LowerBounds[i])+int64(r.Lengths[i]) > math.MaxInt32+1 {
				c.failAt(rankOffset, "array bounds overflow")
				return nil
			}
		}
	}
	typeOffset := c.off
	r.ElementType = c.memberType()
	if c.err != nil {
		return nil
	}
	d.memberLibraries(typeOffset, MemberTypeInfo{r.ElementType})
	d.bind(start, r.ID, r)
	r.Values = d.elements(r.ElementType, int(total), depth)
	return r
}
