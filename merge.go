package sidemerge

import (
	"fmt"

	"github.com/sidemerge/sidemerge/classfile"
)

// Merger merges the client and server variants of a class. A Merger holds
// no state between calls; distinct class-pair merges may run concurrently
// on the same Merger.
type Merger struct{}

// NewMerger returns a Merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Report carries diagnostic output of a merge. The interface partition is
// informational only: no interface-level marker exists, so one-sided
// interfaces are reported but the merged class does not record them.
type Report struct {
	ClientInterfaces []string // implemented by the client variant only
	ServerInterfaces []string // implemented by the server variant only
}

// Merge decodes both class files, merges them and encodes the result.
// A decode failure on either side fails the whole merge with no output.
func (m *Merger) Merge(client, server []byte) ([]byte, error) {
	nodeClient, err := classfile.Parse(client)
	if err != nil {
		return nil, fmt.Errorf("decode client class: %w", err)
	}
	nodeServer, err := classfile.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("decode server class: %w", err)
	}

	out, _ := m.MergeClasses(nodeClient, nodeServer)

	data, err := out.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode merged class: %w", err)
	}
	return data, nil
}

// MergeClasses merges two decoded variants into a freshly constructed class.
// Class-level attributes and annotations are taken from the client variant;
// they are assumed identical across both builds and are not compared.
// One-sided members are moved into the output and then tagged in place;
// members present on both sides are emitted from the client variant
// unmodified, and the server copy is dropped without a content comparison.
func (m *Merger) MergeClasses(client, server *classfile.Class) (*classfile.Class, *Report) {
	out := &classfile.Class{
		MinorVersion:        client.MinorVersion,
		MajorVersion:        client.MajorVersion,
		AccessFlags:         client.AccessFlags,
		Name:                client.Name,
		Signature:           client.Signature,
		SuperName:           client.SuperName,
		SourceFile:          client.SourceFile,
		SourceDebug:         client.SourceDebug,
		OuterClass:          client.OuterClass,
		OuterMethod:         client.OuterMethod,
		OuterMethodDesc:     client.OuterMethodDesc,
		Module:              client.Module,
		ModulePackages:      client.ModulePackages,
		ModuleMainClass:     client.ModuleMainClass,
		NestHost:            client.NestHost,
		NestMembers:         client.NestMembers,
		PermittedSubclasses: client.PermittedSubclasses,
		Record:              client.Record,
		Deprecated:          client.Deprecated,
		Synthetic:           client.Synthetic,
		Attrs:               client.Attrs,
	}

	out.VisibleAnnotations = append([]classfile.Annotation(nil), client.VisibleAnnotations...)
	out.InvisibleAnnotations = append([]classfile.Annotation(nil), client.InvisibleAnnotations...)
	out.VisibleTypeAnnotations = append([]classfile.TypeAnnotation(nil), client.VisibleTypeAnnotations...)
	out.InvisibleTypeAnnotations = append([]classfile.TypeAnnotation(nil), client.InvisibleTypeAnnotations...)

	out.Interfaces = MergePreserveOrder(client.Interfaces, server.Interfaces)

	report := &Report{}
	inClient := stringSet(client.Interfaces)
	inServer := stringSet(server.Interfaces)
	for _, itf := range out.Interfaces {
		_, onClient := inClient[itf]
		_, onServer := inServer[itf]
		if onClient && !onServer {
			report.ClientInterfaces = append(report.ClientInterfaces, itf)
		} else if onServer && !onClient {
			report.ServerInterfaces = append(report.ServerInterfaces, itf)
		}
	}

	out.InnerClasses = mergeMembers(client.InnerClasses, server.InnerClasses,
		func(ic classfile.InnerClass) string { return ic.Name },
		func(classfile.InnerClass, Side) {})

	out.Fields = mergeMembers(client.Fields, server.Fields,
		func(f *classfile.Field) memberKey { return memberKey{name: f.Name, desc: f.Desc} },
		func(f *classfile.Field, side Side) {
			f.VisibleAnnotations = append(f.VisibleAnnotations, sidedAnnotation(side))
		})

	out.Methods = mergeMembers(client.Methods, server.Methods,
		func(mn *classfile.Method) memberKey { return memberKey{name: mn.Name, desc: mn.Desc} },
		func(mn *classfile.Method, side Side) {
			mn.VisibleAnnotations = append(mn.VisibleAnnotations, sidedAnnotation(side))
		})

	return out, report
}

func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
