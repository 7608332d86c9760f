package nrbf

import "fmt"

// RecordMap binds object ids to the records that introduced them. Binding a
// record also indexes it for the reverse lookups the encoder uses to
// deduplicate strings, class metadata and libraries.
type RecordMap struct {
	records   map[int32]ObjectRecord
	order     []int32
	strings   map[string]int32
	classes   map[string]int32
	libraries map[string]int32
	objects   map[*Object]int32
}

func NewRecordMap() *RecordMap {
	return &RecordMap{
		records:   make(map[int32]ObjectRecord),
		strings:   make(map[string]int32),
		classes:   make(map[string]int32),
		libraries: make(map[string]int32),
		objects:   make(map[*Object]int32),
	}
}

// Bind records r under id. Ids are bound once; a second Bind for the same id
// fails with ErrDuplicateObjectID.
func (m *RecordMap) Bind(id int32, r ObjectRecord) error {
	if id == 0 {
		return invalidArgumentf("object id 0 is reserved")
	}
	if _, ok := m.records[id]; ok {
		return fmt.Errorf("%w %d", ErrDuplicateObjectID, id)
	}
	m.records[id] = r
	m.order = append(m.order, id)

	switch r := r.(type) {
	case *BinaryObjectString:
		if _, ok := m.strings[r.Value]; !ok {
			m.strings[r.Value] = id
		}
	case *BinaryLibrary:
		if _, ok := m.libraries[r.Name]; !ok {
			m.libraries[r.Name] = id
		}
	case *ClassWithID:
	case ClassRecord:
		key := metadataKey(r)
		if _, ok := m.classes[key]; !ok {
			m.classes[key] = id
		}
	}
	return nil
}

// Resolve returns the record bound to id. An unbound id is a format error:
// the stream referenced an object it never defined.
func (m *RecordMap) Resolve(id int32) (ObjectRecord, error) {
	if r, ok := m.records[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: unknown reference %d", ErrFormat, id)
}

// Lookup returns the record bound to id, if any.
func (m *RecordMap) Lookup(id int32) (ObjectRecord, bool) {
	r, ok := m.records[id]
	return r, ok
}

func (m *RecordMap) Len() int { return len(m.records) }

// IDs returns the bound ids in bind order.
func (m *RecordMap) IDs() []int32 { return append([]int32(nil), m.order...) }

// StringID returns the id of the first string record holding s.
func (m *RecordMap) StringID(s string) (int32, bool) {
	id, ok := m.strings[s]
	return id, ok
}

// ClassID returns the id of the first class record whose metadata matches
// r's: same kind, name, library, member names and member types.
func (m *RecordMap) ClassID(r ClassRecord) (int32, bool) {
	id, ok := m.classes[metadataKey(r)]
	return id, ok
}

// LibraryID returns the id of the library record named name.
func (m *RecordMap) LibraryID(name string) (int32, bool) {
	id, ok := m.libraries[name]
	return id, ok
}

// BindObject associates an encoded *Object with the id of its record, so
// that later occurrences of the same pointer become references.
func (m *RecordMap) BindObject(o *Object, id int32) { m.objects[o] = id }

// ObjectID returns the id recorded for o by BindObject.
func (m *RecordMap) ObjectID(o *Object) (int32, bool) {
	id, ok := m.objects[o]
	return id, ok
}

// metadataKey identifies the class metadata of r independently of its
// object id and member values.
func metadataKey(r ClassRecord) string {
	var e encbuf
	if isSystemClass(r) {
		e.uint8(1)
	} else {
		e.uint8(0)
	}
	ci := r.Info()
	e.string(ci.Name)
	e.int32(r.Library())
	e.int32(int32(len(ci.MemberNames)))
	for _, name := range ci.MemberNames {
		e.string(name)
	}
	if isTypedClass(r) {
		e.uint8(1)
		e.memberTypeInfo(r.MemberTypes())
	} else {
		e.uint8(0)
	}
	return string(e.b)
}
