// Package nrbf reads and writes the .NET Remoting Binary Format ([MS-NRBF]),
// the record stream produced by BinaryFormatter and consumed by clipboard and
// drag-drop interchange.
//
// A stream is a SerializedStreamHeader record, a sequence of records and a
// MessageEnd record. Records that introduce objects carry an object id; later
// records may refer back to them with MemberReference records, including
// references that form cycles.
//
// Decoding is strict: every record tag is validated against the grammar
// position it appears in, references are resolved after MessageEnd and any
// violation fails the whole call with an error matching ErrFormat.
//
//	doc, err := nrbf.Decode(data, nil)
//	if err != nil {
//		return err
//	}
//	v, err := doc.Value()
//
// Encoding walks a value tree of Go primitives, strings, slices and *Object
// values and emits the records BinaryFormatter would:
//
//	data, err := nrbf.Marshal(&nrbf.Object{
//		TypeName: "Contoso.Point",
//		LibraryName: "Contoso, Version=1.0.0.0",
//		Members: []nrbf.Member{{Name: "x", Value: int32(1)}, {Name: "y", Value: int32(2)}},
//	})
package nrbf
