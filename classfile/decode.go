package classfile

import (
	"encoding/binary"
	"fmt"
)

const magic = 0xCAFEBABE

// reader is a cursor over the input with a sticky error, so straight-line
// parsing code can defer error checks to natural boundaries.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) u8() byte {
	if r.err != nil {
		return 0
	}
	if r.pos+1 > len(r.data) {
		r.err = ErrTruncated
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	if r.pos+2 > len(r.data) {
		r.err = ErrTruncated
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.data) {
		r.err = ErrTruncated
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+8 > len(r.data) {
		r.err = ErrTruncated
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

// rawMember is a field or method with its attributes still unparsed.
// Members are held raw until the class-level BootstrapMethods attribute is
// located, since invokedynamic operands in method bodies resolve through it.
type rawMember struct {
	access uint16
	name   string
	desc   string
	attrs  []RawAttr
}

// Parse decodes one class file.
func Parse(data []byte) (*Class, error) {
	r := &reader{data: data}
	if m := r.u32(); r.err == nil && m != magic {
		return nil, ErrBadMagic
	}

	c := &Class{
		MinorVersion: r.u16(),
		MajorVersion: r.u16(),
	}

	p, err := readPool(r)
	if err != nil {
		return nil, err
	}

	c.AccessFlags = r.u16()
	thisIdx := r.u16()
	superIdx := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	if c.Name, err = p.className(thisIdx); err != nil {
		return nil, err
	}
	if c.SuperName, err = p.classNameOrEmpty(superIdx); err != nil {
		return nil, err
	}

	ifCount := r.u16()
	for range int(ifCount) {
		name, err := p.className(r.u16())
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, name)
	}

	fieldsRaw, err := readRawMembers(r, p)
	if err != nil {
		return nil, err
	}
	methodsRaw, err := readRawMembers(r, p)
	if err != nil {
		return nil, err
	}
	classAttrs, err := readRawAttrs(r, p)
	if err != nil {
		return nil, err
	}

	for _, a := range classAttrs {
		if a.Name == "BootstrapMethods" {
			if err := readBootstrapMethods(a.Data, p); err != nil {
				return nil, err
			}
			break
		}
	}

	for _, raw := range fieldsRaw {
		f, err := parseField(raw, p)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", raw.name, err)
		}
		c.Fields = append(c.Fields, f)
	}
	for _, raw := range methodsRaw {
		m, err := parseMethod(raw, p)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", raw.name, raw.desc, err)
		}
		c.Methods = append(c.Methods, m)
	}

	if err := parseClassAttrs(c, classAttrs, p); err != nil {
		return nil, err
	}
	return c, nil
}

func readPool(r *reader) (*poolReader, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	p := &poolReader{slots: make([]poolSlot, count)}
	for i := 1; i < int(count); i++ {
		tag := r.u8()
		slot := poolSlot{tag: tag}
		switch tag {
		case tagUtf8:
			n := r.u16()
			slot.str = string(r.take(int(n)))
		case tagInteger, tagFloat:
			slot.u32 = r.u32()
		case tagLong, tagDouble:
			slot.u64 = r.u64()
			// Wide entries occupy two slots.
			i++
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			slot.idx1 = r.u16()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType,
			tagDynamic, tagInvokeDynamic:
			slot.idx1 = r.u16()
			slot.idx2 = r.u16()
		case tagMethodHandle:
			slot.kind = r.u8()
			slot.idx1 = r.u16()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("classfile: unknown constant pool tag %d at %d", tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		p.slots[i] = slot
	}
	return p, nil
}

func readBootstrapMethods(data []byte, p *poolReader) error {
	r := &reader{data: data}
	count := r.u16()
	p.bsm = make([]rawBSM, 0, count)
	for range int(count) {
		b := rawBSM{handle: r.u16()}
		argc := r.u16()
		for range int(argc) {
			b.args = append(b.args, r.u16())
		}
		if r.err != nil {
			return r.err
		}
		p.bsm = append(p.bsm, b)
	}
	return r.err
}

func readAttrHeader(r *reader, p *poolReader) (string, []byte, error) {
	nameIdx := r.u16()
	length := r.u32()
	data := r.take(int(length))
	if r.err != nil {
		return "", nil, r.err
	}
	name, err := p.utf8(nameIdx)
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}

func readRawAttrs(r *reader, p *poolReader) ([]RawAttr, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	attrs := make([]RawAttr, 0, count)
	for range int(count) {
		name, data, err := readAttrHeader(r, p)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, RawAttr{Name: name, Data: data})
	}
	return attrs, nil
}

func readRawMembers(r *reader, p *poolReader) ([]rawMember, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	members := make([]rawMember, 0, count)
	for range int(count) {
		m := rawMember{access: r.u16()}
		nameIdx := r.u16()
		descIdx := r.u16()
		if r.err != nil {
			return nil, r.err
		}
		var err error
		if m.name, err = p.utf8(nameIdx); err != nil {
			return nil, err
		}
		if m.desc, err = p.utf8(descIdx); err != nil {
			return nil, err
		}
		if m.attrs, err = readRawAttrs(r, p); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func parseClassAttrs(c *Class, attrs []RawAttr, p *poolReader) error {
	for _, a := range attrs {
		r := &reader{data: a.Data}
		var err error
		switch a.Name {
		case "SourceFile":
			c.SourceFile, err = p.utf8(r.u16())
		case "Signature":
			c.Signature, err = p.utf8(r.u16())
		case "SourceDebugExtension":
			c.SourceDebug = string(a.Data)
		case "Deprecated":
			c.Deprecated = true
		case "Synthetic":
			c.Synthetic = true
		case "InnerClasses":
			count := r.u16()
			for range int(count) {
				ic := InnerClass{}
				if ic.Name, err = p.className(r.u16()); err != nil {
					return err
				}
				if ic.Outer, err = p.classNameOrEmpty(r.u16()); err != nil {
					return err
				}
				if ic.Inner, err = p.utf8OrEmpty(r.u16()); err != nil {
					return err
				}
				ic.AccessFlags = r.u16()
				c.InnerClasses = append(c.InnerClasses, ic)
			}
		case "EnclosingMethod":
			classIdx := r.u16()
			methodIdx := r.u16()
			if c.OuterClass, err = p.className(classIdx); err != nil {
				return err
			}
			if methodIdx != 0 {
				if c.OuterMethod, c.OuterMethodDesc, err = p.nameAndType(methodIdx); err != nil {
					return err
				}
			}
		case "NestHost":
			c.NestHost, err = p.className(r.u16())
		case "NestMembers":
			c.NestMembers, err = readClassList(r, p)
		case "PermittedSubclasses":
			c.PermittedSubclasses, err = readClassList(r, p)
		case "Module":
			c.Module, err = readModule(r, p)
		case "ModulePackages":
			count := r.u16()
			for range int(count) {
				name, perr := p.packageName(r.u16())
				if perr != nil {
					return perr
				}
				c.ModulePackages = append(c.ModulePackages, name)
			}
		case "ModuleMainClass":
			c.ModuleMainClass, err = p.className(r.u16())
		case "Record":
			c.Record, err = readRecord(r, p)
		case "RuntimeVisibleAnnotations":
			c.VisibleAnnotations, err = readAnnotations(r, p)
		case "RuntimeInvisibleAnnotations":
			c.InvisibleAnnotations, err = readAnnotations(r, p)
		case "RuntimeVisibleTypeAnnotations":
			c.VisibleTypeAnnotations, err = readTypeAnnotations(r, p)
		case "RuntimeInvisibleTypeAnnotations":
			c.InvisibleTypeAnnotations, err = readTypeAnnotations(r, p)
		case "BootstrapMethods":
			// Consumed up front; rebuilt at encode time.
		default:
			c.Attrs = append(c.Attrs, a)
		}
		if err != nil {
			return err
		}
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func readClassList(r *reader, p *poolReader) ([]string, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	names := make([]string, 0, count)
	for range int(count) {
		name, err := p.className(r.u16())
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func readModule(r *reader, p *poolReader) (*Module, error) {
	m := &Module{}
	var err error
	if m.Name, err = p.moduleName(r.u16()); err != nil {
		return nil, err
	}
	m.Flags = r.u16()
	if m.Version, err = p.utf8OrEmpty(r.u16()); err != nil {
		return nil, err
	}

	reqCount := r.u16()
	for range int(reqCount) {
		req := ModuleRequire{}
		if req.Module, err = p.moduleName(r.u16()); err != nil {
			return nil, err
		}
		req.Flags = r.u16()
		if req.Version, err = p.utf8OrEmpty(r.u16()); err != nil {
			return nil, err
		}
		m.Requires = append(m.Requires, req)
	}

	for _, dst := range []*[]ModulePackage{&m.Exports, &m.Opens} {
		count := r.u16()
		for range int(count) {
			mp := ModulePackage{}
			if mp.Package, err = p.packageName(r.u16()); err != nil {
				return nil, err
			}
			mp.Flags = r.u16()
			toCount := r.u16()
			for range int(toCount) {
				to, err := p.moduleName(r.u16())
				if err != nil {
					return nil, err
				}
				mp.To = append(mp.To, to)
			}
			*dst = append(*dst, mp)
		}
	}

	usesCount := r.u16()
	for range int(usesCount) {
		use, err := p.className(r.u16())
		if err != nil {
			return nil, err
		}
		m.Uses = append(m.Uses, use)
	}

	providesCount := r.u16()
	for range int(providesCount) {
		prov := ModuleProvide{}
		if prov.Service, err = p.className(r.u16()); err != nil {
			return nil, err
		}
		withCount := r.u16()
		for range int(withCount) {
			with, err := p.className(r.u16())
			if err != nil {
				return nil, err
			}
			prov.With = append(prov.With, with)
		}
		m.Provides = append(m.Provides, prov)
	}

	return m, r.err
}

func readRecord(r *reader, p *poolReader) (*Record, error) {
	count := r.u16()
	rec := &Record{}
	for range int(count) {
		comp := RecordComponent{}
		var err error
		if comp.Name, err = p.utf8(r.u16()); err != nil {
			return nil, err
		}
		if comp.Desc, err = p.utf8(r.u16()); err != nil {
			return nil, err
		}
		attrs, err := readRawAttrs(r, p)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			ar := &reader{data: a.Data}
			switch a.Name {
			case "Signature":
				if comp.Signature, err = p.utf8(ar.u16()); err != nil {
					return nil, err
				}
			case "RuntimeVisibleAnnotations":
				if comp.VisibleAnnotations, err = readAnnotations(ar, p); err != nil {
					return nil, err
				}
			case "RuntimeInvisibleAnnotations":
				if comp.InvisibleAnnotations, err = readAnnotations(ar, p); err != nil {
					return nil, err
				}
			case "RuntimeVisibleTypeAnnotations":
				if comp.VisibleTypeAnnotations, err = readTypeAnnotations(ar, p); err != nil {
					return nil, err
				}
			case "RuntimeInvisibleTypeAnnotations":
				if comp.InvisibleTypeAnnotations, err = readTypeAnnotations(ar, p); err != nil {
					return nil, err
				}
			default:
				comp.Attrs = append(comp.Attrs, a)
			}
			if ar.err != nil {
				return nil, ar.err
			}
		}
		rec.Components = append(rec.Components, comp)
	}
	return rec, r.err
}

func parseField(raw rawMember, p *poolReader) (*Field, error) {
	f := &Field{AccessFlags: raw.access, Name: raw.name, Desc: raw.desc}
	for _, a := range raw.attrs {
		r := &reader{data: a.Data}
		var err error
		switch a.Name {
		case "ConstantValue":
			f.ConstantValue, err = p.constAt(r.u16())
		case "Signature":
			f.Signature, err = p.utf8(r.u16())
		case "Deprecated":
			f.Deprecated = true
		case "Synthetic":
			f.Synthetic = true
		case "RuntimeVisibleAnnotations":
			f.VisibleAnnotations, err = readAnnotations(r, p)
		case "RuntimeInvisibleAnnotations":
			f.InvisibleAnnotations, err = readAnnotations(r, p)
		case "RuntimeVisibleTypeAnnotations":
			f.VisibleTypeAnnotations, err = readTypeAnnotations(r, p)
		case "RuntimeInvisibleTypeAnnotations":
			f.InvisibleTypeAnnotations, err = readTypeAnnotations(r, p)
		default:
			f.Attrs = append(f.Attrs, a)
		}
		if err != nil {
			return nil, err
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return f, nil
}

func parseMethod(raw rawMember, p *poolReader) (*Method, error) {
	m := &Method{AccessFlags: raw.access, Name: raw.name, Desc: raw.desc}
	for _, a := range raw.attrs {
		r := &reader{data: a.Data}
		var err error
		switch a.Name {
		case "Code":
			m.Code, err = readCode(r, p)
		case "Exceptions":
			m.Exceptions, err = readClassList(r, p)
		case "Signature":
			m.Signature, err = p.utf8(r.u16())
		case "Deprecated":
			m.Deprecated = true
		case "Synthetic":
			m.Synthetic = true
		case "MethodParameters":
			count := r.u8()
			for range int(count) {
				param := Parameter{}
				if param.Name, err = p.utf8OrEmpty(r.u16()); err != nil {
					return nil, err
				}
				param.AccessFlags = r.u16()
				m.Parameters = append(m.Parameters, param)
			}
		case "AnnotationDefault":
			var ev ElementValue
			if ev, err = readElementValue(r, p); err == nil {
				m.AnnotationDefault = &ev
			}
		case "RuntimeVisibleAnnotations":
			m.VisibleAnnotations, err = readAnnotations(r, p)
		case "RuntimeInvisibleAnnotations":
			m.InvisibleAnnotations, err = readAnnotations(r, p)
		case "RuntimeVisibleTypeAnnotations":
			m.VisibleTypeAnnotations, err = readTypeAnnotations(r, p)
		case "RuntimeInvisibleTypeAnnotations":
			m.InvisibleTypeAnnotations, err = readTypeAnnotations(r, p)
		case "RuntimeVisibleParameterAnnotations":
			m.VisibleParameterAnnotations, err = readParameterAnnotations(r, p)
		case "RuntimeInvisibleParameterAnnotations":
			m.InvisibleParameterAnnotations, err = readParameterAnnotations(r, p)
		default:
			m.Attrs = append(m.Attrs, a)
		}
		if err != nil {
			return nil, err
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return m, nil
}

func readParameterAnnotations(r *reader, p *poolReader) ([][]Annotation, error) {
	count := r.u8()
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]Annotation, 0, count)
	for range int(count) {
		annos, err := readAnnotations(r, p)
		if err != nil {
			return nil, err
		}
		out = append(out, annos)
	}
	return out, nil
}
