package nrbf

import (
	"errors"
	"testing"
)

func TestRecordMapBind(t *testing.T) {
	m := NewRecordMap()
	if err := m.Bind(0, &BinaryObjectString{Value: "x"}); !IsInvalidArgument(err) {
		t.Fatalf("Bind(0) err = %v, want invalid argument", err)
	}
	if err := m.Bind(2, &BinaryObjectString{ID: 2, Value: "x"}); err != nil {
		t.Fatalf("Bind(2): %v", err)
	}
	if err := m.Bind(-5, &BinaryLibrary{ID: -5, Name: "L"}); err != nil {
		t.Fatalf("Bind(-5): %v", err)
	}
	if err := m.Bind(2, &BinaryObjectString{ID: 2, Value: "y"}); !errors.Is(err, ErrDuplicateObjectID) {
		t.Fatalf("second Bind(2) err = %v, want ErrDuplicateObjectID", err)
	}

	if id, ok := m.StringID("x"); !ok || id != 2 {
		t.Fatalf("StringID(x) = %d, %v", id, ok)
	}
	if id, ok := m.LibraryID("L"); !ok || id != -5 {
		t.Fatalf("LibraryID(L) = %d, %v", id, ok)
	}
	if ids := m.IDs(); len(ids) != 2 || ids[0] != 2 || ids[1] != -5 {
		t.Fatalf("IDs = %v, want [2 -5]", ids)
	}
	if _, err := m.Resolve(7); !IsFormat(err) {
		t.Fatalf("Resolve(7) err = %v, want format error", err)
	}
}

func TestRecordMapClassMetadata(t *testing.T) {
	m := NewRecordMap()
	types := MemberTypeInfo{PrimitiveMember(PrimitiveInt32)}
	first := &ClassWithMembersAndTypes{ClassInfo: ClassInfo{ID: 1, Name: "C", MemberNames: []string{"a"}}, Types: types, LibraryID: 9}
	if err := m.Bind(1, first); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	same := &ClassWithMembersAndTypes{ClassInfo: ClassInfo{ID: 4, Name: "C", MemberNames: []string{"a"}}, Types: types, LibraryID: 9}
	if id, ok := m.ClassID(same); !ok || id != 1 {
		t.Fatalf("ClassID(same) = %d, %v, want 1", id, ok)
	}
	other := &ClassWithMembersAndTypes{ClassInfo: ClassInfo{ID: 5, Name: "C", MemberNames: []string{"a"}}, Types: types, LibraryID: 8}
	if _, ok := m.ClassID(other); ok {
		t.Fatalf("ClassID matched a class from another library")
	}
	sys := &SystemClassWithMembersAndTypes{ClassInfo: ClassInfo{ID: 6, Name: "C", MemberNames: []string{"a"}}, Types: types}
	if _, ok := m.ClassID(sys); ok {
		t.Fatalf("ClassID matched a system class against a library class")
	}

	o := &Object{TypeName: "C"}
	m.BindObject(o, 1)
	if id, ok := m.ObjectID(o); !ok || id != 1 {
		t.Fatalf("ObjectID = %d, %v", id, ok)
	}
	if _, ok := m.ObjectID(&Object{TypeName: "C"}); ok {
		t.Fatalf("ObjectID matched a different pointer")
	}
}
