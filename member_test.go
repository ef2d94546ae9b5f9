package sidemerge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidemerge/sidemerge/classfile"
)

func testField(name, desc string) *classfile.Field {
	return &classfile.Field{AccessFlags: 0x0002, Name: name, Desc: desc}
}

func fieldKey(f *classfile.Field) memberKey {
	return memberKey{name: f.Name, desc: f.Desc}
}

func tagField(f *classfile.Field, side Side) {
	f.VisibleAnnotations = append(f.VisibleAnnotations, sidedAnnotation(side))
}

func TestMergeMembersTwoSidedKeepsClientEntry(t *testing.T) {
	clientField := testField("ticks", "I")
	serverField := testField("ticks", "I")

	out := mergeMembers([]*classfile.Field{clientField}, []*classfile.Field{serverField}, fieldKey, tagField)

	require.Len(t, out, 1)
	assert.Same(t, clientField, out[0])
	assert.Empty(t, out[0].VisibleAnnotations)
}

func TestMergeMembersTagsOneSidedEntries(t *testing.T) {
	client := []*classfile.Field{testField("shared", "I"), testField("fancyGraphics", "Z")}
	server := []*classfile.Field{testField("shared", "I"), testField("playerIdleTimeout", "I")}

	out := mergeMembers(client, server, fieldKey, tagField)

	require.Len(t, out, 3)
	assert.Equal(t, "shared", out[0].Name)
	assert.Empty(t, out[0].VisibleAnnotations)
	assert.Equal(t, "fancyGraphics", out[1].Name)
	assert.Equal(t, []classfile.Annotation{{Type: ClientOnlyDescriptor}}, out[1].VisibleAnnotations)
	assert.Equal(t, "playerIdleTimeout", out[2].Name)
	assert.Equal(t, []classfile.Annotation{{Type: DedicatedServerOnlyDescriptor}}, out[2].VisibleAnnotations)
}

func TestMergeMembersDistinguishesOverloads(t *testing.T) {
	// Same name, different descriptor: two distinct members.
	client := []*classfile.Field{testField("value", "I")}
	server := []*classfile.Field{testField("value", "J")}

	out := mergeMembers(client, server, fieldKey, tagField)

	require.Len(t, out, 2)
	assert.Equal(t, "I", out[0].Desc)
	assert.Equal(t, []classfile.Annotation{{Type: ClientOnlyDescriptor}}, out[0].VisibleAnnotations)
	assert.Equal(t, "J", out[1].Desc)
	assert.Equal(t, []classfile.Annotation{{Type: DedicatedServerOnlyDescriptor}}, out[1].VisibleAnnotations)
}

func TestMergeMembersEmptySides(t *testing.T) {
	only := []*classfile.Field{testField("a", "I"), testField("b", "I")}

	out := mergeMembers(only, nil, fieldKey, tagField)
	require.Len(t, out, 2)
	for _, f := range out {
		assert.Equal(t, []classfile.Annotation{{Type: ClientOnlyDescriptor}}, f.VisibleAnnotations)
	}

	assert.Empty(t, mergeMembers(nil, nil, fieldKey, tagField))
}
