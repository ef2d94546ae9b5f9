package classfile

import "fmt"

// writer accumulates big-endian output. It cannot fail; size limits are
// checked once at the end of Encode.
type writer struct {
	buf []byte
}

func (w *writer) u8(v byte)      { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16)   { w.buf = append(w.buf, byte(v>>8), byte(v)) }
func (w *writer) u32(v uint32)   { w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v)) }
func (w *writer) u64(v uint64)   { w.u32(uint32(v >> 32)); w.u32(uint32(v)) }
func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

// attrList collects serialized attributes for one attribute table.
type attrList struct {
	entries []attrEntry
}

type attrEntry struct {
	nameIdx uint16
	data    []byte
}

func (l *attrList) add(b *poolBuilder, name string, content *writer) {
	l.entries = append(l.entries, attrEntry{nameIdx: b.utf8(name), data: content.buf})
}

// addFlag adds a zero-length marker attribute (Deprecated, Synthetic).
func (l *attrList) addFlag(b *poolBuilder, name string) {
	l.add(b, name, &writer{})
}

func (l *attrList) addAnnotationPair(b *poolBuilder, visible, invisible []Annotation) error {
	if len(visible) > 0 {
		sub := &writer{}
		if err := writeAnnotations(sub, b, visible); err != nil {
			return err
		}
		l.add(b, "RuntimeVisibleAnnotations", sub)
	}
	if len(invisible) > 0 {
		sub := &writer{}
		if err := writeAnnotations(sub, b, invisible); err != nil {
			return err
		}
		l.add(b, "RuntimeInvisibleAnnotations", sub)
	}
	return nil
}

func (l *attrList) addTypeAnnotations(b *poolBuilder, visible, invisible []TypeAnnotation) error {
	if len(visible) > 0 {
		sub := &writer{}
		if err := writeTypeAnnotations(sub, b, visible); err != nil {
			return err
		}
		l.add(b, "RuntimeVisibleTypeAnnotations", sub)
	}
	if len(invisible) > 0 {
		sub := &writer{}
		if err := writeTypeAnnotations(sub, b, invisible); err != nil {
			return err
		}
		l.add(b, "RuntimeInvisibleTypeAnnotations", sub)
	}
	return nil
}

func (l *attrList) writeTo(w *writer) {
	w.u16(uint16(len(l.entries)))
	for _, e := range l.entries {
		w.u16(e.nameIdx)
		w.u32(uint32(len(e.data)))
		w.bytes(e.data)
	}
}

// Encode serializes the class with a freshly built constant pool.
// Attributes held in Attrs fields are not emitted; see the type docs.
func (c *Class) Encode() ([]byte, error) {
	// Table counts are u16 on the wire; a merged class can exceed them even
	// when both inputs were valid.
	for _, tbl := range []struct {
		n    int
		what string
	}{
		{len(c.Interfaces), "interfaces"},
		{len(c.Fields), "fields"},
		{len(c.Methods), "methods"},
		{len(c.InnerClasses), "inner classes"},
	} {
		if tbl.n > 0xFFFF {
			return nil, fmt.Errorf("%w: %d %s", ErrCountOverflow, tbl.n, tbl.what)
		}
	}

	b := newPoolBuilder()

	// Intern narrow ldc constants first so their rebuilt indices fit in
	// one byte.
	for _, m := range c.Methods {
		if m.Code == nil {
			continue
		}
		for _, site := range m.Code.Sites {
			if !site.Wide {
				b.constant(site.Const)
			}
		}
	}

	body := &writer{}
	body.u16(c.AccessFlags)
	body.u16(b.class(c.Name))
	body.u16(b.classOrZero(c.SuperName))

	body.u16(uint16(len(c.Interfaces)))
	for _, itf := range c.Interfaces {
		body.u16(b.class(itf))
	}

	body.u16(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		if err := writeField(body, b, f); err != nil {
			return nil, err
		}
	}

	body.u16(uint16(len(c.Methods)))
	for _, m := range c.Methods {
		if err := writeMethod(body, b, m); err != nil {
			return nil, err
		}
	}

	attrs, err := classAttrs(c, b)
	if err != nil {
		return nil, err
	}

	// BootstrapMethods goes last: serializing an entry can intern dynamic
	// constants that append further entries, so iterate by index.
	if len(b.bsm) > 0 {
		entries := &writer{}
		for i := 0; i < len(b.bsm); i++ {
			bm := b.bsm[i]
			entries.u16(b.methodHandle(bm.Handle))
			entries.u16(uint16(len(bm.Args)))
			for _, arg := range bm.Args {
				entries.u16(b.constant(arg))
			}
		}
		sub := &writer{}
		sub.u16(uint16(len(b.bsm)))
		sub.bytes(entries.buf)
		attrs.add(b, "BootstrapMethods", sub)
	}

	attrs.writeTo(body)

	if b.count > 0xFFFF {
		return nil, ErrPoolOverflow
	}

	out := &writer{}
	out.u32(magic)
	out.u16(c.MinorVersion)
	out.u16(c.MajorVersion)
	out.u16(uint16(b.count))
	out.bytes(b.out.buf)
	out.bytes(body.buf)
	return out.buf, nil
}

func classAttrs(c *Class, b *poolBuilder) (*attrList, error) {
	attrs := &attrList{}

	if c.SourceFile != "" {
		sub := &writer{}
		sub.u16(b.utf8(c.SourceFile))
		attrs.add(b, "SourceFile", sub)
	}
	if c.Signature != "" {
		sub := &writer{}
		sub.u16(b.utf8(c.Signature))
		attrs.add(b, "Signature", sub)
	}
	if c.SourceDebug != "" {
		attrs.add(b, "SourceDebugExtension", &writer{buf: []byte(c.SourceDebug)})
	}
	if len(c.InnerClasses) > 0 {
		sub := &writer{}
		sub.u16(uint16(len(c.InnerClasses)))
		for _, ic := range c.InnerClasses {
			sub.u16(b.class(ic.Name))
			sub.u16(b.classOrZero(ic.Outer))
			if ic.Inner == "" {
				sub.u16(0)
			} else {
				sub.u16(b.utf8(ic.Inner))
			}
			sub.u16(ic.AccessFlags)
		}
		attrs.add(b, "InnerClasses", sub)
	}
	if c.OuterClass != "" {
		sub := &writer{}
		sub.u16(b.class(c.OuterClass))
		if c.OuterMethod == "" {
			sub.u16(0)
		} else {
			sub.u16(b.nameAndType(c.OuterMethod, c.OuterMethodDesc))
		}
		attrs.add(b, "EnclosingMethod", sub)
	}
	if c.NestHost != "" {
		sub := &writer{}
		sub.u16(b.class(c.NestHost))
		attrs.add(b, "NestHost", sub)
	}
	if len(c.NestMembers) > 0 {
		attrs.add(b, "NestMembers", writeClassList(b, c.NestMembers))
	}
	if len(c.PermittedSubclasses) > 0 {
		attrs.add(b, "PermittedSubclasses", writeClassList(b, c.PermittedSubclasses))
	}
	if c.Module != nil {
		attrs.add(b, "Module", writeModule(b, c.Module))
	}
	if len(c.ModulePackages) > 0 {
		sub := &writer{}
		sub.u16(uint16(len(c.ModulePackages)))
		for _, pkg := range c.ModulePackages {
			sub.u16(b.pkg(pkg))
		}
		attrs.add(b, "ModulePackages", sub)
	}
	if c.ModuleMainClass != "" {
		sub := &writer{}
		sub.u16(b.class(c.ModuleMainClass))
		attrs.add(b, "ModuleMainClass", sub)
	}
	if c.Record != nil {
		sub, err := writeRecord(b, c.Record)
		if err != nil {
			return nil, err
		}
		attrs.add(b, "Record", sub)
	}
	if c.Deprecated {
		attrs.addFlag(b, "Deprecated")
	}
	if c.Synthetic {
		attrs.addFlag(b, "Synthetic")
	}
	if err := attrs.addAnnotationPair(b, c.VisibleAnnotations, c.InvisibleAnnotations); err != nil {
		return nil, err
	}
	if err := attrs.addTypeAnnotations(b, c.VisibleTypeAnnotations, c.InvisibleTypeAnnotations); err != nil {
		return nil, err
	}
	return attrs, nil
}

func writeClassList(b *poolBuilder, names []string) *writer {
	sub := &writer{}
	sub.u16(uint16(len(names)))
	for _, name := range names {
		sub.u16(b.class(name))
	}
	return sub
}

func writeField(w *writer, b *poolBuilder, f *Field) error {
	w.u16(f.AccessFlags)
	w.u16(b.utf8(f.Name))
	w.u16(b.utf8(f.Desc))

	var attrs attrList
	if f.ConstantValue != nil {
		sub := &writer{}
		sub.u16(b.constant(f.ConstantValue))
		attrs.add(b, "ConstantValue", sub)
	}
	if f.Signature != "" {
		sub := &writer{}
		sub.u16(b.utf8(f.Signature))
		attrs.add(b, "Signature", sub)
	}
	if f.Deprecated {
		attrs.addFlag(b, "Deprecated")
	}
	if f.Synthetic {
		attrs.addFlag(b, "Synthetic")
	}
	if err := attrs.addAnnotationPair(b, f.VisibleAnnotations, f.InvisibleAnnotations); err != nil {
		return err
	}
	if err := attrs.addTypeAnnotations(b, f.VisibleTypeAnnotations, f.InvisibleTypeAnnotations); err != nil {
		return err
	}
	attrs.writeTo(w)
	return nil
}

func writeMethod(w *writer, b *poolBuilder, m *Method) error {
	w.u16(m.AccessFlags)
	w.u16(b.utf8(m.Name))
	w.u16(b.utf8(m.Desc))

	var attrs attrList
	if m.Code != nil {
		sub := &writer{}
		if err := writeCode(sub, b, m.Code); err != nil {
			return err
		}
		attrs.add(b, "Code", sub)
	}
	if len(m.Exceptions) > 0 {
		attrs.add(b, "Exceptions", writeClassList(b, m.Exceptions))
	}
	if m.Signature != "" {
		sub := &writer{}
		sub.u16(b.utf8(m.Signature))
		attrs.add(b, "Signature", sub)
	}
	if m.Deprecated {
		attrs.addFlag(b, "Deprecated")
	}
	if m.Synthetic {
		attrs.addFlag(b, "Synthetic")
	}
	if len(m.Parameters) > 0 {
		sub := &writer{}
		sub.u8(byte(len(m.Parameters)))
		for _, param := range m.Parameters {
			if param.Name == "" {
				sub.u16(0)
			} else {
				sub.u16(b.utf8(param.Name))
			}
			sub.u16(param.AccessFlags)
		}
		attrs.add(b, "MethodParameters", sub)
	}
	if m.AnnotationDefault != nil {
		sub := &writer{}
		if err := writeElementValue(sub, b, *m.AnnotationDefault); err != nil {
			return err
		}
		attrs.add(b, "AnnotationDefault", sub)
	}
	if err := attrs.addAnnotationPair(b, m.VisibleAnnotations, m.InvisibleAnnotations); err != nil {
		return err
	}
	if err := addParameterAnnotations(&attrs, b, "RuntimeVisibleParameterAnnotations", m.VisibleParameterAnnotations); err != nil {
		return err
	}
	if err := addParameterAnnotations(&attrs, b, "RuntimeInvisibleParameterAnnotations", m.InvisibleParameterAnnotations); err != nil {
		return err
	}
	if err := attrs.addTypeAnnotations(b, m.VisibleTypeAnnotations, m.InvisibleTypeAnnotations); err != nil {
		return err
	}
	attrs.writeTo(w)
	return nil
}

func addParameterAnnotations(attrs *attrList, b *poolBuilder, name string, params [][]Annotation) error {
	if len(params) == 0 {
		return nil
	}
	sub := &writer{}
	sub.u8(byte(len(params)))
	for _, annos := range params {
		if err := writeAnnotations(sub, b, annos); err != nil {
			return err
		}
	}
	attrs.add(b, name, sub)
	return nil
}

func writeModule(b *poolBuilder, m *Module) *writer {
	sub := &writer{}
	sub.u16(b.module(m.Name))
	sub.u16(m.Flags)
	if m.Version == "" {
		sub.u16(0)
	} else {
		sub.u16(b.utf8(m.Version))
	}

	sub.u16(uint16(len(m.Requires)))
	for _, req := range m.Requires {
		sub.u16(b.module(req.Module))
		sub.u16(req.Flags)
		if req.Version == "" {
			sub.u16(0)
		} else {
			sub.u16(b.utf8(req.Version))
		}
	}

	for _, directives := range [][]ModulePackage{m.Exports, m.Opens} {
		sub.u16(uint16(len(directives)))
		for _, mp := range directives {
			sub.u16(b.pkg(mp.Package))
			sub.u16(mp.Flags)
			sub.u16(uint16(len(mp.To)))
			for _, to := range mp.To {
				sub.u16(b.module(to))
			}
		}
	}

	sub.u16(uint16(len(m.Uses)))
	for _, use := range m.Uses {
		sub.u16(b.class(use))
	}

	sub.u16(uint16(len(m.Provides)))
	for _, prov := range m.Provides {
		sub.u16(b.class(prov.Service))
		sub.u16(uint16(len(prov.With)))
		for _, with := range prov.With {
			sub.u16(b.class(with))
		}
	}
	return sub
}

func writeRecord(b *poolBuilder, rec *Record) (*writer, error) {
	sub := &writer{}
	sub.u16(uint16(len(rec.Components)))
	for _, comp := range rec.Components {
		sub.u16(b.utf8(comp.Name))
		sub.u16(b.utf8(comp.Desc))

		var attrs attrList
		if comp.Signature != "" {
			sig := &writer{}
			sig.u16(b.utf8(comp.Signature))
			attrs.add(b, "Signature", sig)
		}
		if err := attrs.addAnnotationPair(b, comp.VisibleAnnotations, comp.InvisibleAnnotations); err != nil {
			return nil, err
		}
		if err := attrs.addTypeAnnotations(b, comp.VisibleTypeAnnotations, comp.InvisibleTypeAnnotations); err != nil {
			return nil, err
		}
		attrs.writeTo(sub)
	}
	return sub, nil
}
