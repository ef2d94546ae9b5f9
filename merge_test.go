package sidemerge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidemerge/sidemerge/classfile"
)

func testMethod(name, desc string) *classfile.Method {
	return &classfile.Method{AccessFlags: 0x0001, Name: name, Desc: desc}
}

func fieldNames(fields []*classfile.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func methodNames(methods []*classfile.Method) []string {
	out := make([]string, len(methods))
	for i, m := range methods {
		out[i] = m.Name
	}
	return out
}

// markerOf returns the side marker descriptor carried by the annotation
// list, or "" when no marker is present.
func markerOf(t *testing.T, annotations []classfile.Annotation) string {
	t.Helper()
	var found string
	for _, a := range annotations {
		if a.Type == ClientOnlyDescriptor || a.Type == DedicatedServerOnlyDescriptor {
			require.Empty(t, found, "member carries more than one side marker")
			found = a.Type
		}
	}
	return found
}

func TestMergeClassesFields(t *testing.T) {
	client := &classfile.Class{
		Name:   "net/example/Widget",
		Fields: []*classfile.Field{testField("a", "I"), testField("b", "I"), testField("c", "I")},
	}
	server := &classfile.Class{
		Name:   "net/example/Widget",
		Fields: []*classfile.Field{testField("b", "I"), testField("c", "I"), testField("d", "I")},
	}

	out, _ := NewMerger().MergeClasses(client, server)

	require.Equal(t, []string{"a", "b", "c", "d"}, fieldNames(out.Fields))
	assert.Equal(t, ClientOnlyDescriptor, markerOf(t, out.Fields[0].VisibleAnnotations))
	assert.Empty(t, markerOf(t, out.Fields[1].VisibleAnnotations))
	assert.Empty(t, markerOf(t, out.Fields[2].VisibleAnnotations))
	assert.Equal(t, DedicatedServerOnlyDescriptor, markerOf(t, out.Fields[3].VisibleAnnotations))
}

func TestMergeClassesMethods(t *testing.T) {
	client := &classfile.Class{
		Name:    "net/example/Widget",
		Methods: []*classfile.Method{testMethod("foo", "()V"), testMethod("bar", "()V")},
	}
	server := &classfile.Class{
		Name:    "net/example/Widget",
		Methods: []*classfile.Method{testMethod("bar", "()V"), testMethod("baz", "()V")},
	}

	out, _ := NewMerger().MergeClasses(client, server)

	require.Equal(t, []string{"foo", "bar", "baz"}, methodNames(out.Methods))
	assert.Equal(t, ClientOnlyDescriptor, markerOf(t, out.Methods[0].VisibleAnnotations))
	assert.Empty(t, markerOf(t, out.Methods[1].VisibleAnnotations))
	assert.Equal(t, DedicatedServerOnlyDescriptor, markerOf(t, out.Methods[2].VisibleAnnotations))
}

func TestMergeClassesInterfaces(t *testing.T) {
	client := &classfile.Class{Name: "net/example/Widget", Interfaces: []string{"net/example/X", "net/example/Y"}}
	server := &classfile.Class{Name: "net/example/Widget", Interfaces: []string{"net/example/Y", "net/example/Z"}}

	out, report := NewMerger().MergeClasses(client, server)

	assert.Equal(t, []string{"net/example/X", "net/example/Y", "net/example/Z"}, out.Interfaces)
	assert.Equal(t, []string{"net/example/X"}, report.ClientInterfaces)
	assert.Equal(t, []string{"net/example/Z"}, report.ServerInterfaces)

	// One-sided interfaces are reported but never annotated.
	assert.Empty(t, out.VisibleAnnotations)
	assert.Empty(t, out.InvisibleAnnotations)
}

func TestMergeClassesEmptyServerSide(t *testing.T) {
	client := &classfile.Class{
		Name:   "net/example/Widget",
		Fields: []*classfile.Field{testField("a", "I"), testField("b", "I")},
	}
	server := &classfile.Class{Name: "net/example/Widget"}

	out, report := NewMerger().MergeClasses(client, server)

	require.Equal(t, []string{"a", "b"}, fieldNames(out.Fields))
	for _, f := range out.Fields {
		assert.Equal(t, ClientOnlyDescriptor, markerOf(t, f.VisibleAnnotations))
	}
	assert.Empty(t, report.ClientInterfaces)
	assert.Empty(t, report.ServerInterfaces)
}

func TestMergeClassesTwoSidedMembersMoveUnmodified(t *testing.T) {
	shared := testField("shared", "I")
	client := &classfile.Class{Name: "net/example/Widget", Fields: []*classfile.Field{shared}}
	server := &classfile.Class{Name: "net/example/Widget", Fields: []*classfile.Field{testField("shared", "I")}}

	out, _ := NewMerger().MergeClasses(client, server)

	require.Len(t, out.Fields, 1)
	assert.Same(t, shared, out.Fields[0])
}

func TestMergeClassesCopiesClientAttributes(t *testing.T) {
	client := &classfile.Class{
		MajorVersion: 65,
		AccessFlags:  0x0031,
		Name:         "net/example/Widget",
		Signature:    "Ljava/lang/Object;Ljava/lang/Comparable<Lnet/example/Widget;>;",
		SuperName:    "java/lang/Object",
		SourceFile:   "Widget.java",
		NestHost:     "net/example/Outer",
		Deprecated:   true,
		InnerClasses: []classfile.InnerClass{
			{Name: "net/example/Widget$Inner", Outer: "net/example/Widget", Inner: "Inner", AccessFlags: 0x0008},
		},
		VisibleAnnotations: []classfile.Annotation{{Type: "Lnet/example/Marker;"}},
	}
	server := &classfile.Class{
		MajorVersion: 65,
		Name:         "net/example/Widget",
		SuperName:    "java/lang/Object",
		SourceFile:   "Widget_server.java",
	}

	out, _ := NewMerger().MergeClasses(client, server)

	assert.Equal(t, uint16(65), out.MajorVersion)
	assert.Equal(t, uint16(0x0031), out.AccessFlags)
	assert.Equal(t, client.Signature, out.Signature)
	assert.Equal(t, "Widget.java", out.SourceFile)
	assert.Equal(t, "net/example/Outer", out.NestHost)
	assert.True(t, out.Deprecated)
	assert.Equal(t, client.InnerClasses, out.InnerClasses)
	assert.Equal(t, client.VisibleAnnotations, out.VisibleAnnotations)
}

func TestMergeClassesAgainstItselfAddsNothing(t *testing.T) {
	c := &classfile.Class{
		Name:       "net/example/Widget",
		Interfaces: []string{"net/example/X"},
		Fields:     []*classfile.Field{testField("a", "I")},
		Methods:    []*classfile.Method{testMethod("foo", "()V")},
	}

	out, report := NewMerger().MergeClasses(c, c)

	assert.Equal(t, c.Interfaces, out.Interfaces)
	require.Len(t, out.Fields, 1)
	assert.Same(t, c.Fields[0], out.Fields[0])
	assert.Empty(t, out.Fields[0].VisibleAnnotations)
	require.Len(t, out.Methods, 1)
	assert.Empty(t, out.Methods[0].VisibleAnnotations)
	assert.Empty(t, report.ClientInterfaces)
	assert.Empty(t, report.ServerInterfaces)
}

func encodeTestClass(t *testing.T, c *classfile.Class) []byte {
	t.Helper()
	data, err := c.Encode()
	require.NoError(t, err)
	return data
}

func TestMergeBytes(t *testing.T) {
	client := &classfile.Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Widget",
		SuperName:    "java/lang/Object",
		Fields:       []*classfile.Field{testField("a", "I"), testField("b", "I")},
	}
	server := &classfile.Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Widget",
		SuperName:    "java/lang/Object",
		Fields:       []*classfile.Field{testField("b", "I"), testField("c", "I")},
	}

	data, err := NewMerger().Merge(encodeTestClass(t, client), encodeTestClass(t, server))
	require.NoError(t, err)

	out, err := classfile.Parse(data)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, fieldNames(out.Fields))
	assert.Equal(t, ClientOnlyDescriptor, markerOf(t, out.Fields[0].VisibleAnnotations))
	assert.Empty(t, markerOf(t, out.Fields[1].VisibleAnnotations))
	assert.Equal(t, DedicatedServerOnlyDescriptor, markerOf(t, out.Fields[2].VisibleAnnotations))
}

func TestMergeRejectsBadInput(t *testing.T) {
	valid := encodeTestClass(t, &classfile.Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Widget",
		SuperName:    "java/lang/Object",
	})

	_, err := NewMerger().Merge([]byte{0xde, 0xad, 0xbe, 0xef}, valid)
	require.ErrorIs(t, err, classfile.ErrBadMagic)
	assert.ErrorContains(t, err, "decode client class")

	_, err = NewMerger().Merge(valid, valid[:8])
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode server class")
}
