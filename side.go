package sidemerge

import "github.com/sidemerge/sidemerge/classfile"

// Marker annotation descriptors. Downstream tools match these exact names to
// recognize one-sided members, so they are part of the public contract.
const (
	ClientOnlyDescriptor          = "Lorg/muonmc/loader/api/game/minecraft/ClientOnly;"
	DedicatedServerOnlyDescriptor = "Lorg/muonmc/loader/api/game/minecraft/DedicatedServerOnly;"
)

// Side identifies which build environment a one-sided member came from.
type Side uint8

const (
	SideClient Side = iota
	SideServer
)

// String returns "CLIENT" or "SERVER".
func (s Side) String() string {
	if s == SideClient {
		return "CLIENT"
	}
	return "SERVER"
}

// Descriptor returns the marker annotation descriptor for the side.
func (s Side) Descriptor() string {
	if s == SideClient {
		return ClientOnlyDescriptor
	}
	return DedicatedServerOnlyDescriptor
}

// sidedAnnotation builds the runtime-visible marker annotation for a side.
func sidedAnnotation(side Side) classfile.Annotation {
	return classfile.Annotation{Type: side.Descriptor()}
}

// AnnotateSide appends the side marker annotation to the class itself. The
// jar pipeline uses this for classes that exist in only one input jar.
func AnnotateSide(c *classfile.Class, side Side) {
	c.VisibleAnnotations = append(c.VisibleAnnotations, sidedAnnotation(side))
}
