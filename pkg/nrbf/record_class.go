package nrbf

// ClassInfo is the identity and member layout shared by all class records.
type ClassInfo struct {
	ID          int32
	Name        string
	MemberNames []string
}

func (c *cursor) classInfo() ClassInfo {
	var ci ClassInfo
	ci.ID = c.int32()
	ci.Name = c.string()
	n := c.count("member count")
	if !c.need(n, 1) {
		return ci
	}
	ci.MemberNames = make([]string, n)
	for i := range ci.MemberNames {
		ci.MemberNames[i] = c.string()
	}
	return ci
}

func (e *encbuf) classInfo(ci *ClassInfo) {
	e.int32(ci.ID)
	e.string(ci.Name)
	e.int32(int32(len(ci.MemberNames)))
	for _, name := range ci.MemberNames {
		e.string(name)
	}
}

// ClassRecord is implemented by the five class records. MemberTypes and
// Library describe the class metadata, which a ClassWithID borrows from an
// earlier record.
type ClassRecord interface {
	ObjectRecord
	Info() *ClassInfo
	MemberTypes() MemberTypeInfo
	// Library returns the id of the defining BinaryLibrary, or 0 for
	// system classes.
	Library() int32
	Values() []any
}

// ClassWithMembersAndTypes is a user class with full member type
// information.
type ClassWithMembersAndTypes struct {
	ClassInfo
	Types        MemberTypeInfo
	LibraryID    int32
	MemberValues []any
}

func (*ClassWithMembersAndTypes) RecordType() RecordType {
	return RecordClassWithMembersAndTypes
}
func (r *ClassWithMembersAndTypes) ObjectID() int32             { return r.ID }
func (r *ClassWithMembersAndTypes) Info() *ClassInfo            { return &r.ClassInfo }
func (r *ClassWithMembersAndTypes) MemberTypes() MemberTypeInfo { return r.Types }
func (r *ClassWithMembersAndTypes) Library() int32              { return r.LibraryID }
func (r *ClassWithMembersAndTypes) Values() []any               { return r.MemberValues }

func (r *ClassWithMembersAndTypes) encode(w *RecordWriter) {
	w.buf.tag(RecordClassWithMembersAndTypes)
	w.buf.classInfo(&r.ClassInfo)
	w.buf.memberTypeInfo(r.Types)
	w.buf.int32(r.LibraryID)
	w.members(r)
}

// SystemClassWithMembersAndTypes is a class from the core library with full
// member type information.
type SystemClassWithMembersAndTypes struct {
	ClassInfo
	Types        MemberTypeInfo
	MemberValues []any
}

func (*SystemClassWithMembersAndTypes) RecordType() RecordType {
	return RecordSystemClassWithMembersAndTypes
}
func (r *SystemClassWithMembersAndTypes) ObjectID() int32             { return r.ID }
func (r *SystemClassWithMembersAndTypes) Info() *ClassInfo            { return &r.ClassInfo }
func (r *SystemClassWithMembersAndTypes) MemberTypes() MemberTypeInfo { return r.Types }
func (r *SystemClassWithMembersAndTypes) Library() int32              { return 0 }
func (r *SystemClassWithMembersAndTypes) Values() []any               { return r.MemberValues }

func (r *SystemClassWithMembersAndTypes) encode(w *RecordWriter) {
	w.buf.tag(RecordSystemClassWithMembersAndTypes)
	w.buf.classInfo(&r.ClassInfo)
	w.buf.memberTypeInfo(r.Types)
	w.members(r)
}

// ClassWithMembers is a user class without member types. Every member is
// read as an Object.
type ClassWithMembers struct {
	ClassInfo
	LibraryID    int32
	MemberValues []any
}

func (*ClassWithMembers) RecordType() RecordType        { return RecordClassWithMembers }
func (r *ClassWithMembers) ObjectID() int32             { return r.ID }
func (r *ClassWithMembers) Info() *ClassInfo            { return &r.ClassInfo }
func (r *ClassWithMembers) MemberTypes() MemberTypeInfo { return untypedMembers(len(r.MemberNames)) }
func (r *ClassWithMembers) Library() int32              { return r.LibraryID }
func (r *ClassWithMembers) Values() []any               { return r.MemberValues }

func (r *ClassWithMembers) encode(w *RecordWriter) {
	w.buf.tag(RecordClassWithMembers)
	w.buf.classInfo(&r.ClassInfo)
	w.buf.int32(r.LibraryID)
	w.members(r)
}

// SystemClassWithMembers is a core library class without member types.
type SystemClassWithMembers struct {
	ClassInfo
	MemberValues []any
}

func (*SystemClassWithMembers) RecordType() RecordType        { return RecordSystemClassWithMembers }
func (r *SystemClassWithMembers) ObjectID() int32             { return r.ID }
func (r *SystemClassWithMembers) Info() *ClassInfo            { return &r.ClassInfo }
func (r *SystemClassWithMembers) MemberTypes() MemberTypeInfo { return untypedMembers(len(r.MemberNames)) }
func (r *SystemClassWithMembers) Library() int32              { return 0 }
func (r *SystemClassWithMembers) Values() []any               { return r.MemberValues }

func (r *SystemClassWithMembers) encode(w *RecordWriter) {
	w.buf.tag(RecordSystemClassWithMembers)
	w.buf.classInfo(&r.ClassInfo)
	w.members(r)
}

// ClassWithID is another instance of a class whose metadata was already
// written by an earlier class record.
type ClassWithID struct {
	ID           int32
	MetadataID   int32
	MemberValues []any
	metadata     ClassRecord
}

// NewClassWithID returns an instance record that borrows the name, member
// names and member types of metadata.
func NewClassWithID(id int32, metadata ClassRecord, values []any) *ClassWithID {
	return &ClassWithID{ID: id, MetadataID: metadata.ObjectID(), MemberValues: values, metadata: metadata}
}

func (*ClassWithID) RecordType() RecordType { return RecordClassWithID }
func (r *ClassWithID) ObjectID() int32      { return r.ID }
func (r *ClassWithID) Values() []any        { return r.MemberValues }

// Metadata returns the class record that defined this instance's layout.
func (r *ClassWithID) Metadata() ClassRecord { return r.metadata }

func (r *ClassWithID) Info() *ClassInfo            { return r.metadata.Info() }
func (r *ClassWithID) MemberTypes() MemberTypeInfo { return r.metadata.MemberTypes() }
func (r *ClassWithID) Library() int32              { return r.metadata.Library() }

func (r *ClassWithID) encode(w *RecordWriter) {
	w.buf.tag(RecordClassWithID)
	w.buf.int32(r.ID)
	w.buf.int32(r.MetadataID)
	if r.metadata == nil {
		w.buf.fail(invalidArgumentf("class %d has no metadata record", r.ID))
		return
	}
	w.members(r)
}

func untypedMembers(n int) MemberTypeInfo {
	mi := make(MemberTypeInfo, n)
	for i := range mi {
		mi[i] = ObjectMember
	}
	return mi
}

// isSystemClass reports whether r's metadata comes from a system class
// record.
func isSystemClass(r ClassRecord) bool {
	if cw, ok := r.(*ClassWithID); ok {
		r = cw.metadata
	}
	switch r.(type) {
	case *SystemClassWithMembersAndTypes, *SystemClassWithMembers:
		return true
	}
	return false
}

// isTypedClass reports whether r's metadata carries member types.
func isTypedClass(r ClassRecord) bool {
	if cw, ok := r.(*ClassWithID); ok {
		r = cw.metadata
	}
	switch r.(type) {
	case *ClassWithMembersAndTypes, *SystemClassWithMembersAndTypes:
		return true
	}
	return false
}
