package classfile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Const is a symbolic constant pool value. Variants cover every loadable
// constant plus member references; structural pool entries (Utf8,
// NameAndType) are resolved into the referencing variant and never appear
// on their own.
type Const interface {
	// key returns a string unique to the constant's identity, used for
	// pool deduplication during encoding.
	key() string
}

// IntConst is a CONSTANT_Integer value.
type IntConst int32

// FloatConst is a CONSTANT_Float value.
type FloatConst float32

// LongConst is a CONSTANT_Long value.
type LongConst int64

// DoubleConst is a CONSTANT_Double value.
type DoubleConst float64

// StringConst is a CONSTANT_String value.
type StringConst string

// ClassConst is a CONSTANT_Class reference (internal name or array
// descriptor).
type ClassConst string

// MethodTypeConst is a CONSTANT_MethodType descriptor.
type MethodTypeConst string

// ModuleConst is a CONSTANT_Module name.
type ModuleConst string

// PackageConst is a CONSTANT_Package name.
type PackageConst string

// RefKind distinguishes the three member reference pool tags.
type RefKind uint8

const (
	RefField RefKind = iota
	RefMethod
	RefInterfaceMethod
)

// MemberRef is a CONSTANT_Fieldref, CONSTANT_Methodref or
// CONSTANT_InterfaceMethodref.
type MemberRef struct {
	Kind  RefKind
	Class string
	Name  string
	Desc  string
}

// MethodHandle is a CONSTANT_MethodHandle. HandleKind is the JVM reference
// kind (1 getField .. 9 invokeInterface).
type MethodHandle struct {
	HandleKind uint8
	Ref        MemberRef
}

// DynamicConst is a CONSTANT_Dynamic or, when Invoke is set,
// CONSTANT_InvokeDynamic. The bootstrap method is inlined so the constant
// stays self-contained; Encode rebuilds the BootstrapMethods table from
// these.
type DynamicConst struct {
	Invoke    bool
	Name      string
	Desc      string
	Bootstrap BootstrapMethod
}

// BootstrapMethod is one BootstrapMethods table entry.
type BootstrapMethod struct {
	Handle MethodHandle
	Args   []Const
}

func (c IntConst) key() string        { return "I" + strconv.FormatInt(int64(c), 10) }
func (c FloatConst) key() string      { return "F" + strconv.FormatUint(uint64(math.Float32bits(float32(c))), 16) }
func (c LongConst) key() string       { return "J" + strconv.FormatInt(int64(c), 10) }
func (c DoubleConst) key() string     { return "D" + strconv.FormatUint(math.Float64bits(float64(c)), 16) }
func (c StringConst) key() string     { return "s" + string(c) }
func (c ClassConst) key() string      { return "C" + string(c) }
func (c MethodTypeConst) key() string { return "T" + string(c) }
func (c ModuleConst) key() string     { return "M" + string(c) }
func (c PackageConst) key() string    { return "P" + string(c) }

func (c MemberRef) key() string {
	return fmt.Sprintf("R%d:%q:%q:%q", c.Kind, c.Class, c.Name, c.Desc)
}

func (c MethodHandle) key() string {
	return fmt.Sprintf("H%d:%s", c.HandleKind, c.Ref.key())
}

func (c DynamicConst) key() string {
	var sb strings.Builder
	if c.Invoke {
		sb.WriteString("Y")
	} else {
		sb.WriteString("y")
	}
	fmt.Fprintf(&sb, "%q:%q:%s", c.Name, c.Desc, c.Bootstrap.key())
	return sb.String()
}

func (b BootstrapMethod) key() string {
	var sb strings.Builder
	sb.WriteString(b.Handle.key())
	for _, arg := range b.Args {
		sb.WriteString("|")
		sb.WriteString(arg.key())
	}
	return sb.String()
}
