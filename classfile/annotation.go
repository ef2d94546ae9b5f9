package classfile

import "fmt"

// Annotation is one annotation occurrence. Type is the field descriptor of
// the annotation interface, e.g. "Ljava/lang/Deprecated;".
type Annotation struct {
	Type   string
	Values []ElementValuePair
}

// ElementValuePair is one named element of an annotation.
type ElementValuePair struct {
	Name  string
	Value ElementValue
}

// ElementValue is an annotation element value. Tag selects which of the
// remaining fields is meaningful, using the JVM tag characters:
// B C D F I J S Z s carry Const, e carries EnumType/EnumName, c carries
// Class, @ carries Annotation, [ carries Array.
type ElementValue struct {
	Tag        byte
	Const      Const
	EnumType   string
	EnumName   string
	Class      string
	Annotation *Annotation
	Array      []ElementValue
}

// TypeAnnotation is one type annotation occurrence. TargetInfo and TypePath
// are kept as raw bytes: neither contains constant pool references, so they
// survive re-encoding verbatim.
type TypeAnnotation struct {
	TargetType byte
	TargetInfo []byte
	TypePath   []byte
	Annotation Annotation
}

func readAnnotations(r *reader, p *poolReader) ([]Annotation, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	annos := make([]Annotation, 0, count)
	for range int(count) {
		a, err := readAnnotation(r, p)
		if err != nil {
			return nil, err
		}
		annos = append(annos, a)
	}
	return annos, nil
}

func readAnnotation(r *reader, p *poolReader) (Annotation, error) {
	typeIdx := r.u16()
	pairs := r.u16()
	if r.err != nil {
		return Annotation{}, r.err
	}
	typ, err := p.utf8(typeIdx)
	if err != nil {
		return Annotation{}, err
	}
	a := Annotation{Type: typ}
	for range int(pairs) {
		nameIdx := r.u16()
		if r.err != nil {
			return Annotation{}, r.err
		}
		name, err := p.utf8(nameIdx)
		if err != nil {
			return Annotation{}, err
		}
		ev, err := readElementValue(r, p)
		if err != nil {
			return Annotation{}, err
		}
		a.Values = append(a.Values, ElementValuePair{Name: name, Value: ev})
	}
	return a, nil
}

func readElementValue(r *reader, p *poolReader) (ElementValue, error) {
	tag := r.u8()
	if r.err != nil {
		return ElementValue{}, r.err
	}
	ev := ElementValue{Tag: tag}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		c, err := p.constAt(r.u16())
		if err != nil {
			return ElementValue{}, err
		}
		ev.Const = c
	case 's':
		s, err := p.utf8(r.u16())
		if err != nil {
			return ElementValue{}, err
		}
		ev.Const = StringConst(s)
	case 'e':
		typ, err := p.utf8(r.u16())
		if err != nil {
			return ElementValue{}, err
		}
		name, err := p.utf8(r.u16())
		if err != nil {
			return ElementValue{}, err
		}
		ev.EnumType, ev.EnumName = typ, name
	case 'c':
		desc, err := p.utf8(r.u16())
		if err != nil {
			return ElementValue{}, err
		}
		ev.Class = desc
	case '@':
		nested, err := readAnnotation(r, p)
		if err != nil {
			return ElementValue{}, err
		}
		ev.Annotation = &nested
	case '[':
		count := r.u16()
		if r.err != nil {
			return ElementValue{}, r.err
		}
		for range int(count) {
			item, err := readElementValue(r, p)
			if err != nil {
				return ElementValue{}, err
			}
			ev.Array = append(ev.Array, item)
		}
	default:
		return ElementValue{}, fmt.Errorf("classfile: unknown element value tag %q", tag)
	}
	return ev, r.err
}

func readTypeAnnotations(r *reader, p *poolReader) ([]TypeAnnotation, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	annos := make([]TypeAnnotation, 0, count)
	for range int(count) {
		targetType := r.u8()
		targetInfo, err := readTargetInfo(r, targetType)
		if err != nil {
			return nil, err
		}
		pathLen := r.u8()
		typePath := r.take(int(pathLen) * 2)
		if r.err != nil {
			return nil, r.err
		}
		a, err := readAnnotation(r, p)
		if err != nil {
			return nil, err
		}
		annos = append(annos, TypeAnnotation{
			TargetType: targetType,
			TargetInfo: targetInfo,
			TypePath:   typePath,
			Annotation: a,
		})
	}
	return annos, nil
}

// readTargetInfo consumes the target_info union for the given target_type.
// Content is opaque to the codec (no pool references); only its length
// depends on the target type.
func readTargetInfo(r *reader, targetType byte) ([]byte, error) {
	switch targetType {
	case 0x00, 0x01, 0x16:
		return r.take(1), r.err
	case 0x10, 0x11, 0x12, 0x17, 0x42, 0x43, 0x44, 0x45, 0x46:
		return r.take(2), r.err
	case 0x13, 0x14, 0x15:
		return nil, r.err
	case 0x40, 0x41:
		tableLen := r.u16()
		table := r.take(int(tableLen) * 6)
		if r.err != nil {
			return nil, r.err
		}
		buf := make([]byte, 0, 2+len(table))
		buf = append(buf, byte(tableLen>>8), byte(tableLen))
		return append(buf, table...), nil
	case 0x47, 0x48, 0x49, 0x4A, 0x4B:
		return r.take(3), r.err
	default:
		return nil, fmt.Errorf("classfile: unknown type annotation target 0x%02x", targetType)
	}
}

func writeAnnotations(w *writer, b *poolBuilder, annos []Annotation) error {
	w.u16(uint16(len(annos)))
	for _, a := range annos {
		if err := writeAnnotation(w, b, a); err != nil {
			return err
		}
	}
	return nil
}

func writeAnnotation(w *writer, b *poolBuilder, a Annotation) error {
	w.u16(b.utf8(a.Type))
	w.u16(uint16(len(a.Values)))
	for _, pair := range a.Values {
		w.u16(b.utf8(pair.Name))
		if err := writeElementValue(w, b, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeElementValue(w *writer, b *poolBuilder, ev ElementValue) error {
	w.u8(ev.Tag)
	switch ev.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		w.u16(b.constant(ev.Const))
	case 's':
		s, ok := ev.Const.(StringConst)
		if !ok {
			return fmt.Errorf("classfile: string element value holds %T", ev.Const)
		}
		w.u16(b.utf8(string(s)))
	case 'e':
		w.u16(b.utf8(ev.EnumType))
		w.u16(b.utf8(ev.EnumName))
	case 'c':
		w.u16(b.utf8(ev.Class))
	case '@':
		if ev.Annotation == nil {
			return fmt.Errorf("classfile: nested annotation element value is nil")
		}
		return writeAnnotation(w, b, *ev.Annotation)
	case '[':
		w.u16(uint16(len(ev.Array)))
		for _, item := range ev.Array {
			if err := writeElementValue(w, b, item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("classfile: unknown element value tag %q", ev.Tag)
	}
	return nil
}

func writeTypeAnnotations(w *writer, b *poolBuilder, annos []TypeAnnotation) error {
	w.u16(uint16(len(annos)))
	for _, ta := range annos {
		w.u8(ta.TargetType)
		w.bytes(ta.TargetInfo)
		w.u8(byte(len(ta.TypePath) / 2))
		w.bytes(ta.TypePath)
		if err := writeAnnotation(w, b, ta.Annotation); err != nil {
			return err
		}
	}
	return nil
}
