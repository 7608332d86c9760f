package interchange

import (
	"bytes"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type fuzzRecord struct {
	Name   string
	Count  int32
	Small  int16
	Big    uint64
	Ratio  float64
	On     bool
	Flags  []byte
	Labels []string
	Corner Rectangle
	Inner  *fuzzRecord
}

func (*fuzzRecord) NRBFClass() TypeName {
	return TypeName{FullName: "Fuzz.Record", AssemblyName: "Fuzz"}
}

func FuzzTryWriteObject(f *testing.F) {
	s := New(Options{Resolver: ResolverFor(&fuzzRecord{})})
	f.Fuzz(func(t *testing.T, data []byte) {
		ff := fuzz.NewConsumer(data)
		rec := &fuzzRecord{}
		if err := ff.GenerateStruct(rec); err != nil {
			return
		}
		var buf bytes.Buffer
		ok, err := s.TryWriteObject(&buf, rec)
		if err != nil {
			t.Fatalf("TryWriteObject: %v", err)
		}
		if !ok {
			if buf.Len() != 0 {
				t.Fatalf("rejected write left %d bytes", buf.Len())
			}
			return
		}
		got, ok, err := s.TryReadObject(&buf)
		if err != nil || !ok {
			t.Fatalf("TryReadObject = %v, %v", ok, err)
		}
		if diff := cmp.Diff(rec, got, cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func FuzzTryReadObject(f *testing.F) {
	s := New(Options{})
	for _, v := range []any{Point{X: 1, Y: 2}, List[string]{"a"}, Hashtable{{Key: "k", Value: int32(1)}}} {
		data, err := s.Marshal(v)
		if err != nil {
			f.Fatal(err)
		}
		f.Add(data)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _, _ = s.TryReadObject(bytes.NewReader(data))
	})
}
