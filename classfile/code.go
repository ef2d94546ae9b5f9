package classfile

import (
	"encoding/binary"
	"fmt"
)

// Code is a method body. Bytecode is raw; Sites records every constant pool
// reference inside it so Encode can patch the operands against a rebuilt
// pool without understanding the surrounding instructions.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16
	Bytecode  []byte
	Sites     []ConstSite

	Handlers      []ExceptionHandler
	StackMap      []StackMapFrame
	LineNumbers   []LineNumber
	LocalVars     []LocalVar
	LocalVarTypes []LocalVar

	VisibleTypeAnnotations   []TypeAnnotation
	InvisibleTypeAnnotations []TypeAnnotation

	Attrs []RawAttr
}

// ConstSite is one constant pool operand inside Bytecode. Offset addresses
// the index operand, not the opcode. Wide sites are two bytes; narrow sites
// (ldc) are one.
type ConstSite struct {
	Offset int
	Wide   bool
	Const  Const
}

// ExceptionHandler is one exception table entry. Type is the internal name
// of the caught class, or "" for a catch-all.
type ExceptionHandler struct {
	Start   uint16
	End     uint16
	Handler uint16
	Type    string
}

// LineNumber is one LineNumberTable entry.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LocalVar is one LocalVariableTable or LocalVariableTypeTable entry; Desc
// holds the descriptor or, for the type table, the generic signature.
type LocalVar struct {
	StartPC uint16
	Length  uint16
	Name    string
	Desc    string
	Index   uint16
}

// StackMapFrame is one StackMapTable frame, kept close to its wire form.
// Which fields are meaningful depends on Tag (JVMS 4.7.4).
type StackMapFrame struct {
	Tag         byte
	OffsetDelta uint16
	Locals      []VerificationType
	Stack       []VerificationType
}

// VerificationType is one verification_type_info. Class is set for tag 7
// (Object), Offset for tag 8 (Uninitialized).
type VerificationType struct {
	Tag    byte
	Class  string
	Offset uint16
}

// operandLen maps opcodes to operand byte counts. Variable-length opcodes
// (tableswitch, lookupswitch, wide) are handled separately.
var operandLen = [202]int{
	16: 1, 17: 2, 18: 1, 19: 2, 20: 2,
	21: 1, 22: 1, 23: 1, 24: 1, 25: 1,
	54: 1, 55: 1, 56: 1, 57: 1, 58: 1,
	132: 2,
	153: 2, 154: 2, 155: 2, 156: 2, 157: 2, 158: 2,
	159: 2, 160: 2, 161: 2, 162: 2, 163: 2, 164: 2, 165: 2, 166: 2,
	167: 2, 168: 2, 169: 1,
	178: 2, 179: 2, 180: 2, 181: 2,
	182: 2, 183: 2, 184: 2, 185: 4, 186: 4,
	187: 2, 188: 1, 189: 2,
	192: 2, 193: 2,
	197: 3,
	198: 2, 199: 2,
	200: 4, 201: 4,
}

// wideConstOps are the opcodes carrying a two-byte pool index at pc+1.
var wideConstOps = map[byte]bool{
	19: true, 20: true, // ldc_w, ldc2_w
	178: true, 179: true, 180: true, 181: true, // get/putstatic, get/putfield
	182: true, 183: true, 184: true, 185: true, 186: true, // invokes
	187: true, 189: true, 192: true, 193: true, 197: true, // new, anewarray, checkcast, instanceof, multianewarray
}

const (
	opLdc          = 18
	opTableswitch  = 170
	opLookupswitch = 171
	opIinc         = 132
	opWide         = 196
)

// scanConstSites walks the bytecode and resolves every pool operand.
func scanConstSites(code []byte, p *poolReader) ([]ConstSite, error) {
	var sites []ConstSite
	pc := 0
	for pc < len(code) {
		op := code[pc]
		size := 1

		switch op {
		case opTableswitch:
			pad := (4 - (pc+1)%4) % 4
			base := pc + 1 + pad
			if base+12 > len(code) {
				return nil, fmt.Errorf("%w: tableswitch at %d", ErrTruncated, pc)
			}
			low := int32(binary.BigEndian.Uint32(code[base+4:]))
			high := int32(binary.BigEndian.Uint32(code[base+8:]))
			if high < low {
				return nil, fmt.Errorf("classfile: tableswitch at %d has inverted range %d..%d", pc, low, high)
			}
			size = 1 + pad + 12 + 4*int(high-low+1)
		case opLookupswitch:
			pad := (4 - (pc+1)%4) % 4
			base := pc + 1 + pad
			if base+8 > len(code) {
				return nil, fmt.Errorf("%w: lookupswitch at %d", ErrTruncated, pc)
			}
			npairs := int32(binary.BigEndian.Uint32(code[base+4:]))
			if npairs < 0 {
				return nil, fmt.Errorf("classfile: lookupswitch at %d has negative pair count %d", pc, npairs)
			}
			size = 1 + pad + 8 + 8*int(npairs)
		case opWide:
			if pc+1 < len(code) && code[pc+1] == opIinc {
				size = 6
			} else {
				size = 4
			}
		default:
			if int(op) < len(operandLen) {
				size += operandLen[op]
			}
		}

		if pc+size > len(code) {
			return nil, fmt.Errorf("%w: opcode %d at %d", ErrTruncated, op, pc)
		}

		if op == opLdc {
			c, err := p.constAt(uint16(code[pc+1]))
			if err != nil {
				return nil, fmt.Errorf("ldc at %d: %w", pc, err)
			}
			sites = append(sites, ConstSite{Offset: pc + 1, Wide: false, Const: c})
		} else if wideConstOps[op] {
			c, err := p.constAt(binary.BigEndian.Uint16(code[pc+1:]))
			if err != nil {
				return nil, fmt.Errorf("opcode %d at %d: %w", op, pc, err)
			}
			sites = append(sites, ConstSite{Offset: pc + 1, Wide: true, Const: c})
		}

		pc += size
	}
	return sites, nil
}

// patchedBytecode returns a copy of the bytecode with every constant site
// rewritten against the rebuilt pool. Narrow sites whose constant lands
// above index 255 fail; ldc is never widened to ldc_w because that would
// shift every branch target.
func (c *Code) patchedBytecode(b *poolBuilder) ([]byte, error) {
	out := make([]byte, len(c.Bytecode))
	copy(out, c.Bytecode)
	for _, site := range c.Sites {
		idx := b.constant(site.Const)
		if site.Wide {
			binary.BigEndian.PutUint16(out[site.Offset:], idx)
		} else {
			if idx > 0xFF {
				return nil, fmt.Errorf("%w: ldc constant %v needs index %d", ErrPoolOverflow, site.Const, idx)
			}
			out[site.Offset] = byte(idx)
		}
	}
	return out, nil
}

func readCode(r *reader, p *poolReader) (*Code, error) {
	c := &Code{
		MaxStack:  r.u16(),
		MaxLocals: r.u16(),
	}
	codeLen := r.u32()
	c.Bytecode = r.take(int(codeLen))
	if r.err != nil {
		return nil, r.err
	}

	sites, err := scanConstSites(c.Bytecode, p)
	if err != nil {
		return nil, err
	}
	c.Sites = sites

	handlerCount := r.u16()
	for range int(handlerCount) {
		h := ExceptionHandler{
			Start:   r.u16(),
			End:     r.u16(),
			Handler: r.u16(),
		}
		typ, err := p.classNameOrEmpty(r.u16())
		if err != nil {
			return nil, err
		}
		if r.err != nil {
			return nil, r.err
		}
		h.Type = typ
		c.Handlers = append(c.Handlers, h)
	}

	attrCount := r.u16()
	for range int(attrCount) {
		name, data, err := readAttrHeader(r, p)
		if err != nil {
			return nil, err
		}
		ar := &reader{data: data}
		switch name {
		case "StackMapTable":
			if c.StackMap, err = readStackMap(ar, p); err != nil {
				return nil, err
			}
		case "LineNumberTable":
			count := ar.u16()
			for range int(count) {
				c.LineNumbers = append(c.LineNumbers, LineNumber{StartPC: ar.u16(), Line: ar.u16()})
			}
			if ar.err != nil {
				return nil, ar.err
			}
		case "LocalVariableTable":
			if c.LocalVars, err = readLocalVars(ar, p); err != nil {
				return nil, err
			}
		case "LocalVariableTypeTable":
			if c.LocalVarTypes, err = readLocalVars(ar, p); err != nil {
				return nil, err
			}
		case "RuntimeVisibleTypeAnnotations":
			if c.VisibleTypeAnnotations, err = readTypeAnnotations(ar, p); err != nil {
				return nil, err
			}
		case "RuntimeInvisibleTypeAnnotations":
			if c.InvisibleTypeAnnotations, err = readTypeAnnotations(ar, p); err != nil {
				return nil, err
			}
		default:
			c.Attrs = append(c.Attrs, RawAttr{Name: name, Data: data})
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func readLocalVars(r *reader, p *poolReader) ([]LocalVar, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	vars := make([]LocalVar, 0, count)
	for range int(count) {
		lv := LocalVar{StartPC: r.u16(), Length: r.u16()}
		name, err := p.utf8(r.u16())
		if err != nil {
			return nil, err
		}
		desc, err := p.utf8(r.u16())
		if err != nil {
			return nil, err
		}
		lv.Name, lv.Desc = name, desc
		lv.Index = r.u16()
		if r.err != nil {
			return nil, r.err
		}
		vars = append(vars, lv)
	}
	return vars, nil
}

func readStackMap(r *reader, p *poolReader) ([]StackMapFrame, error) {
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	frames := make([]StackMapFrame, 0, count)
	for range int(count) {
		tag := r.u8()
		if r.err != nil {
			return nil, r.err
		}
		f := StackMapFrame{Tag: tag}
		switch {
		case tag <= 63:
			// same_frame
		case tag <= 127:
			vt, err := readVerificationType(r, p)
			if err != nil {
				return nil, err
			}
			f.Stack = []VerificationType{vt}
		case tag == 247:
			f.OffsetDelta = r.u16()
			vt, err := readVerificationType(r, p)
			if err != nil {
				return nil, err
			}
			f.Stack = []VerificationType{vt}
		case tag >= 248 && tag <= 251:
			f.OffsetDelta = r.u16()
		case tag >= 252 && tag <= 254:
			f.OffsetDelta = r.u16()
			for range int(tag - 251) {
				vt, err := readVerificationType(r, p)
				if err != nil {
					return nil, err
				}
				f.Locals = append(f.Locals, vt)
			}
		case tag == 255:
			f.OffsetDelta = r.u16()
			localCount := r.u16()
			for range int(localCount) {
				vt, err := readVerificationType(r, p)
				if err != nil {
					return nil, err
				}
				f.Locals = append(f.Locals, vt)
			}
			stackCount := r.u16()
			for range int(stackCount) {
				vt, err := readVerificationType(r, p)
				if err != nil {
					return nil, err
				}
				f.Stack = append(f.Stack, vt)
			}
		default:
			return nil, fmt.Errorf("classfile: reserved stack map frame tag %d", tag)
		}
		if r.err != nil {
			return nil, r.err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func readVerificationType(r *reader, p *poolReader) (VerificationType, error) {
	vt := VerificationType{Tag: r.u8()}
	switch vt.Tag {
	case 7:
		class, err := p.className(r.u16())
		if err != nil {
			return VerificationType{}, err
		}
		vt.Class = class
	case 8:
		vt.Offset = r.u16()
	}
	return vt, r.err
}

func writeCode(w *writer, b *poolBuilder, c *Code) error {
	w.u16(c.MaxStack)
	w.u16(c.MaxLocals)

	code, err := c.patchedBytecode(b)
	if err != nil {
		return err
	}
	w.u32(uint32(len(code)))
	w.bytes(code)

	w.u16(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w.u16(h.Start)
		w.u16(h.End)
		w.u16(h.Handler)
		w.u16(b.classOrZero(h.Type))
	}

	var attrs attrList
	if len(c.StackMap) > 0 {
		sub := &writer{}
		writeStackMap(sub, b, c.StackMap)
		attrs.add(b, "StackMapTable", sub)
	}
	if len(c.LineNumbers) > 0 {
		sub := &writer{}
		sub.u16(uint16(len(c.LineNumbers)))
		for _, ln := range c.LineNumbers {
			sub.u16(ln.StartPC)
			sub.u16(ln.Line)
		}
		attrs.add(b, "LineNumberTable", sub)
	}
	if len(c.LocalVars) > 0 {
		attrs.add(b, "LocalVariableTable", writeLocalVars(b, c.LocalVars))
	}
	if len(c.LocalVarTypes) > 0 {
		attrs.add(b, "LocalVariableTypeTable", writeLocalVars(b, c.LocalVarTypes))
	}
	if err := attrs.addTypeAnnotations(b, c.VisibleTypeAnnotations, c.InvisibleTypeAnnotations); err != nil {
		return err
	}

	attrs.writeTo(w)
	return nil
}

func writeLocalVars(b *poolBuilder, vars []LocalVar) *writer {
	sub := &writer{}
	sub.u16(uint16(len(vars)))
	for _, lv := range vars {
		sub.u16(lv.StartPC)
		sub.u16(lv.Length)
		sub.u16(b.utf8(lv.Name))
		sub.u16(b.utf8(lv.Desc))
		sub.u16(lv.Index)
	}
	return sub
}

func writeStackMap(w *writer, b *poolBuilder, frames []StackMapFrame) {
	w.u16(uint16(len(frames)))
	for _, f := range frames {
		w.u8(f.Tag)
		switch {
		case f.Tag <= 63:
		case f.Tag <= 127:
			writeVerificationType(w, b, f.Stack[0])
		case f.Tag == 247:
			w.u16(f.OffsetDelta)
			writeVerificationType(w, b, f.Stack[0])
		case f.Tag >= 248 && f.Tag <= 251:
			w.u16(f.OffsetDelta)
		case f.Tag >= 252 && f.Tag <= 254:
			w.u16(f.OffsetDelta)
			for _, vt := range f.Locals {
				writeVerificationType(w, b, vt)
			}
		case f.Tag == 255:
			w.u16(f.OffsetDelta)
			w.u16(uint16(len(f.Locals)))
			for _, vt := range f.Locals {
				writeVerificationType(w, b, vt)
			}
			w.u16(uint16(len(f.Stack)))
			for _, vt := range f.Stack {
				writeVerificationType(w, b, vt)
			}
		}
	}
}

func writeVerificationType(w *writer, b *poolBuilder, vt VerificationType) {
	w.u8(vt.Tag)
	switch vt.Tag {
	case 7:
		w.u16(b.class(vt.Class))
	case 8:
		w.u16(vt.Offset)
	}
}
