package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// poolSlot is one parsed constant pool entry. The second slot of a long or
// double entry has tag 0.
type poolSlot struct {
	tag  byte
	str  string // Utf8
	u32  uint32 // Integer/Float raw bits
	u64  uint64 // Long/Double raw bits
	idx1 uint16
	idx2 uint16
	kind byte // MethodHandle reference kind
}

// rawBSM is one unresolved BootstrapMethods entry.
type rawBSM struct {
	handle uint16
	args   []uint16
}

// poolReader resolves pool indices of a parsed class into symbolic values.
type poolReader struct {
	slots []poolSlot // index 0 unused
	bsm   []rawBSM   // set once the BootstrapMethods attribute is located
}

func (p *poolReader) slot(i uint16, want byte) (*poolSlot, error) {
	if i == 0 || int(i) >= len(p.slots) {
		return nil, fmt.Errorf("%w: %d", ErrPoolIndex, i)
	}
	s := &p.slots[i]
	if s.tag != want {
		return nil, fmt.Errorf("classfile: pool entry %d has tag %d, want %d", i, s.tag, want)
	}
	return s, nil
}

func (p *poolReader) utf8(i uint16) (string, error) {
	s, err := p.slot(i, tagUtf8)
	if err != nil {
		return "", err
	}
	return s.str, nil
}

// utf8OrEmpty resolves an optional Utf8 index, mapping 0 to "".
func (p *poolReader) utf8OrEmpty(i uint16) (string, error) {
	if i == 0 {
		return "", nil
	}
	return p.utf8(i)
}

func (p *poolReader) className(i uint16) (string, error) {
	s, err := p.slot(i, tagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(s.idx1)
}

// classNameOrEmpty resolves an optional Class index, mapping 0 to "".
func (p *poolReader) classNameOrEmpty(i uint16) (string, error) {
	if i == 0 {
		return "", nil
	}
	return p.className(i)
}

func (p *poolReader) moduleName(i uint16) (string, error) {
	s, err := p.slot(i, tagModule)
	if err != nil {
		return "", err
	}
	return p.utf8(s.idx1)
}

func (p *poolReader) packageName(i uint16) (string, error) {
	s, err := p.slot(i, tagPackage)
	if err != nil {
		return "", err
	}
	return p.utf8(s.idx1)
}

func (p *poolReader) nameAndType(i uint16) (name, desc string, err error) {
	s, err := p.slot(i, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.utf8(s.idx1); err != nil {
		return "", "", err
	}
	desc, err = p.utf8(s.idx2)
	return name, desc, err
}

func (p *poolReader) memberRef(i uint16) (MemberRef, error) {
	if i == 0 || int(i) >= len(p.slots) {
		return MemberRef{}, fmt.Errorf("%w: %d", ErrPoolIndex, i)
	}
	s := &p.slots[i]
	var kind RefKind
	switch s.tag {
	case tagFieldref:
		kind = RefField
	case tagMethodref:
		kind = RefMethod
	case tagInterfaceMethodref:
		kind = RefInterfaceMethod
	default:
		return MemberRef{}, fmt.Errorf("classfile: pool entry %d is not a member reference", i)
	}
	class, err := p.className(s.idx1)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.nameAndType(s.idx2)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Kind: kind, Class: class, Name: name, Desc: desc}, nil
}

func (p *poolReader) methodHandle(i uint16) (MethodHandle, error) {
	s, err := p.slot(i, tagMethodHandle)
	if err != nil {
		return MethodHandle{}, err
	}
	ref, err := p.memberRef(s.idx1)
	if err != nil {
		return MethodHandle{}, err
	}
	return MethodHandle{HandleKind: s.kind, Ref: ref}, nil
}

func (p *poolReader) bootstrap(i uint16) (BootstrapMethod, error) {
	if int(i) >= len(p.bsm) {
		return BootstrapMethod{}, fmt.Errorf("classfile: bootstrap method index %d out of range", i)
	}
	raw := p.bsm[i]
	handle, err := p.methodHandle(raw.handle)
	if err != nil {
		return BootstrapMethod{}, err
	}
	b := BootstrapMethod{Handle: handle}
	for _, argIdx := range raw.args {
		arg, err := p.constAt(argIdx)
		if err != nil {
			return BootstrapMethod{}, err
		}
		b.Args = append(b.Args, arg)
	}
	return b, nil
}

// constAt resolves any loadable constant or member reference.
func (p *poolReader) constAt(i uint16) (Const, error) {
	if i == 0 || int(i) >= len(p.slots) {
		return nil, fmt.Errorf("%w: %d", ErrPoolIndex, i)
	}
	s := &p.slots[i]
	switch s.tag {
	case tagInteger:
		return IntConst(int32(s.u32)), nil
	case tagFloat:
		return FloatConst(math.Float32frombits(s.u32)), nil
	case tagLong:
		return LongConst(int64(s.u64)), nil
	case tagDouble:
		return DoubleConst(math.Float64frombits(s.u64)), nil
	case tagString:
		str, err := p.utf8(s.idx1)
		if err != nil {
			return nil, err
		}
		return StringConst(str), nil
	case tagClass:
		name, err := p.utf8(s.idx1)
		if err != nil {
			return nil, err
		}
		return ClassConst(name), nil
	case tagMethodType:
		desc, err := p.utf8(s.idx1)
		if err != nil {
			return nil, err
		}
		return MethodTypeConst(desc), nil
	case tagModule:
		name, err := p.utf8(s.idx1)
		if err != nil {
			return nil, err
		}
		return ModuleConst(name), nil
	case tagPackage:
		name, err := p.utf8(s.idx1)
		if err != nil {
			return nil, err
		}
		return PackageConst(name), nil
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
		return p.memberRef(i)
	case tagMethodHandle:
		return p.methodHandle(i)
	case tagDynamic, tagInvokeDynamic:
		name, desc, err := p.nameAndType(s.idx2)
		if err != nil {
			return nil, err
		}
		bsm, err := p.bootstrap(s.idx1)
		if err != nil {
			return nil, err
		}
		return DynamicConst{
			Invoke:    s.tag == tagInvokeDynamic,
			Name:      name,
			Desc:      desc,
			Bootstrap: bsm,
		}, nil
	default:
		return nil, fmt.Errorf("classfile: pool entry %d (tag %d) is not loadable", i, s.tag)
	}
}

// poolBuilder accumulates a deduplicated constant pool and the bootstrap
// methods table for encoding.
type poolBuilder struct {
	out   writer
	count int // next index; pool indices start at 1
	index map[string]uint16

	bsm      []BootstrapMethod
	bsmIndex map[string]uint16
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{
		count:    1,
		index:    make(map[string]uint16),
		bsmIndex: make(map[string]uint16),
	}
}

// add reserves the next index under key after serializing the entry via
// emit. Callers intern nested entries before calling add so that emit
// writes one contiguous record.
func (b *poolBuilder) add(key string, wide bool, emit func()) uint16 {
	if i, ok := b.index[key]; ok {
		return i
	}
	emit()
	i := uint16(b.count)
	b.index[key] = i
	if wide {
		b.count += 2
	} else {
		b.count++
	}
	return i
}

func (b *poolBuilder) utf8(s string) uint16 {
	return b.add("U"+s, false, func() {
		b.out.u8(tagUtf8)
		b.out.u16(uint16(len(s)))
		b.out.bytes([]byte(s))
	})
}

func (b *poolBuilder) integer(v int32) uint16 {
	return b.add(IntConst(v).key(), false, func() {
		b.out.u8(tagInteger)
		b.out.u32(uint32(v))
	})
}

func (b *poolBuilder) float(v float32) uint16 {
	return b.add(FloatConst(v).key(), false, func() {
		b.out.u8(tagFloat)
		b.out.u32(math.Float32bits(v))
	})
}

func (b *poolBuilder) long(v int64) uint16 {
	return b.add(LongConst(v).key(), true, func() {
		b.out.u8(tagLong)
		b.out.u64(uint64(v))
	})
}

func (b *poolBuilder) double(v float64) uint16 {
	return b.add(DoubleConst(v).key(), true, func() {
		b.out.u8(tagDouble)
		b.out.u64(math.Float64bits(v))
	})
}

func (b *poolBuilder) class(name string) uint16 {
	nameIdx := b.utf8(name)
	return b.add(ClassConst(name).key(), false, func() {
		b.out.u8(tagClass)
		b.out.u16(nameIdx)
	})
}

// classOrZero maps "" to index 0 for optional class references.
func (b *poolBuilder) classOrZero(name string) uint16 {
	if name == "" {
		return 0
	}
	return b.class(name)
}

func (b *poolBuilder) str(s string) uint16 {
	utf8Idx := b.utf8(s)
	return b.add(StringConst(s).key(), false, func() {
		b.out.u8(tagString)
		b.out.u16(utf8Idx)
	})
}

func (b *poolBuilder) nameAndType(name, desc string) uint16 {
	nameIdx := b.utf8(name)
	descIdx := b.utf8(desc)
	return b.add(fmt.Sprintf("N%q:%q", name, desc), false, func() {
		b.out.u8(tagNameAndType)
		b.out.u16(nameIdx)
		b.out.u16(descIdx)
	})
}

func (b *poolBuilder) memberRef(r MemberRef) uint16 {
	classIdx := b.class(r.Class)
	natIdx := b.nameAndType(r.Name, r.Desc)
	var tag byte
	switch r.Kind {
	case RefField:
		tag = tagFieldref
	case RefMethod:
		tag = tagMethodref
	default:
		tag = tagInterfaceMethodref
	}
	return b.add(r.key(), false, func() {
		b.out.u8(tag)
		b.out.u16(classIdx)
		b.out.u16(natIdx)
	})
}

func (b *poolBuilder) methodHandle(h MethodHandle) uint16 {
	refIdx := b.memberRef(h.Ref)
	return b.add(h.key(), false, func() {
		b.out.u8(tagMethodHandle)
		b.out.u8(h.HandleKind)
		b.out.u16(refIdx)
	})
}

func (b *poolBuilder) methodType(desc string) uint16 {
	descIdx := b.utf8(desc)
	return b.add(MethodTypeConst(desc).key(), false, func() {
		b.out.u8(tagMethodType)
		b.out.u16(descIdx)
	})
}

func (b *poolBuilder) module(name string) uint16 {
	nameIdx := b.utf8(name)
	return b.add(ModuleConst(name).key(), false, func() {
		b.out.u8(tagModule)
		b.out.u16(nameIdx)
	})
}

func (b *poolBuilder) pkg(name string) uint16 {
	nameIdx := b.utf8(name)
	return b.add(PackageConst(name).key(), false, func() {
		b.out.u8(tagPackage)
		b.out.u16(nameIdx)
	})
}

// bootstrap interns a BootstrapMethods table entry and returns its index in
// the rebuilt table.
func (b *poolBuilder) bootstrap(bm BootstrapMethod) uint16 {
	key := bm.key()
	if i, ok := b.bsmIndex[key]; ok {
		return i
	}
	// Intern referenced constants before publishing the entry so the table
	// serializes without forward work.
	b.methodHandle(bm.Handle)
	for _, arg := range bm.Args {
		b.constant(arg)
	}
	i := uint16(len(b.bsm))
	b.bsm = append(b.bsm, bm)
	b.bsmIndex[key] = i
	return i
}

func (b *poolBuilder) dynamic(d DynamicConst) uint16 {
	bsmIdx := b.bootstrap(d.Bootstrap)
	natIdx := b.nameAndType(d.Name, d.Desc)
	tag := byte(tagDynamic)
	if d.Invoke {
		tag = tagInvokeDynamic
	}
	return b.add(d.key(), false, func() {
		b.out.u8(tag)
		b.out.u16(bsmIdx)
		b.out.u16(natIdx)
	})
}

// constant interns any Const variant.
func (b *poolBuilder) constant(c Const) uint16 {
	switch v := c.(type) {
	case IntConst:
		return b.integer(int32(v))
	case FloatConst:
		return b.float(float32(v))
	case LongConst:
		return b.long(int64(v))
	case DoubleConst:
		return b.double(float64(v))
	case StringConst:
		return b.str(string(v))
	case ClassConst:
		return b.class(string(v))
	case MethodTypeConst:
		return b.methodType(string(v))
	case ModuleConst:
		return b.module(string(v))
	case PackageConst:
		return b.pkg(string(v))
	case MemberRef:
		return b.memberRef(v)
	case MethodHandle:
		return b.methodHandle(v)
	case DynamicConst:
		return b.dynamic(v)
	default:
		panic(fmt.Sprintf("classfile: unknown constant type %T", c))
	}
}
