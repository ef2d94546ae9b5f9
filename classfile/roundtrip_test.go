package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helloCode builds a getstatic/ldc/invokevirtual/return body together with
// the constant sites matching its operand offsets.
func helloCode() *Code {
	return &Code{
		MaxStack:  2,
		MaxLocals: 1,
		Bytecode: []byte{
			0xb2, 0x00, 0x00, // getstatic
			0x12, 0x00, // ldc
			0xb6, 0x00, 0x00, // invokevirtual
			0xb1, // return
		},
		Sites: []ConstSite{
			{Offset: 1, Wide: true, Const: MemberRef{Kind: RefField, Class: "java/lang/System", Name: "out", Desc: "Ljava/io/PrintStream;"}},
			{Offset: 4, Wide: false, Const: StringConst("hello")},
			{Offset: 6, Wide: true, Const: MemberRef{Kind: RefMethod, Class: "java/io/PrintStream", Name: "println", Desc: "(Ljava/lang/String;)V"}},
		},
		LineNumbers: []LineNumber{{StartPC: 0, Line: 5}, {StartPC: 8, Line: 6}},
		LocalVars:   []LocalVar{{StartPC: 0, Length: 9, Name: "args", Desc: "[Ljava/lang/String;", Index: 0}},
	}
}

func roundtrip(t *testing.T, c *Class) *Class {
	t.Helper()
	data, err := c.Encode()
	require.NoError(t, err)
	out, err := Parse(data)
	require.NoError(t, err)
	return out
}

func TestRoundtripMinimalClass(t *testing.T) {
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Empty",
		SuperName:    "java/lang/Object",
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripClassAttributes(t *testing.T) {
	c := &Class{
		MinorVersion: 0,
		MajorVersion: 65,
		AccessFlags:  0x0031,
		Name:         "net/example/Widget",
		Signature:    "Ljava/lang/Object;Ljava/lang/Comparable<Lnet/example/Widget;>;",
		SuperName:    "java/lang/Object",
		Interfaces:   []string{"java/lang/Comparable", "java/io/Serializable"},
		SourceFile:   "Widget.java",
		NestHost:     "net/example/Outer",
		NestMembers:  []string{"net/example/Widget$Inner"},
		InnerClasses: []InnerClass{
			{Name: "net/example/Widget$Inner", Outer: "net/example/Widget", Inner: "Inner", AccessFlags: 0x0008},
			{Name: "net/example/Widget$1", AccessFlags: 0x0000},
		},
		Deprecated: true,
		VisibleAnnotations: []Annotation{
			{Type: "Lnet/example/Marker;"},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripEnclosingMethod(t *testing.T) {
	c := &Class{
		MajorVersion:    52,
		AccessFlags:     0x0020,
		Name:            "net/example/Widget$1",
		SuperName:       "java/lang/Object",
		OuterClass:      "net/example/Widget",
		OuterMethod:     "run",
		OuterMethodDesc: "()V",
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripFields(t *testing.T) {
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Constants",
		SuperName:    "java/lang/Object",
		Fields: []*Field{
			{AccessFlags: 0x0019, Name: "COUNT", Desc: "I", ConstantValue: IntConst(42)},
			{AccessFlags: 0x0019, Name: "SEED", Desc: "J", ConstantValue: LongConst(-1234567890123)},
			{AccessFlags: 0x0019, Name: "RATIO", Desc: "D", ConstantValue: DoubleConst(0.75)},
			{AccessFlags: 0x0019, Name: "SCALE", Desc: "F", ConstantValue: FloatConst(1.5)},
			{AccessFlags: 0x0019, Name: "NAME", Desc: "Ljava/lang/String;", ConstantValue: StringConst("widget")},
			{
				AccessFlags: 0x0002,
				Name:        "entries",
				Desc:        "Ljava/util/List;",
				Signature:   "Ljava/util/List<Ljava/lang/String;>;",
				Deprecated:  true,
			},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripAnnotationValues(t *testing.T) {
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Annotated",
		SuperName:    "java/lang/Object",
		VisibleAnnotations: []Annotation{
			{
				Type: "Lnet/example/Config;",
				Values: []ElementValuePair{
					{Name: "count", Value: ElementValue{Tag: 'I', Const: IntConst(3)}},
					{Name: "label", Value: ElementValue{Tag: 's', Const: StringConst("lowered")}},
					{Name: "mode", Value: ElementValue{Tag: 'e', EnumType: "Lnet/example/Mode;", EnumName: "FAST"}},
					{Name: "target", Value: ElementValue{Tag: 'c', Class: "Lnet/example/Widget;"}},
					{Name: "nested", Value: ElementValue{
						Tag: '@',
						Annotation: &Annotation{
							Type:   "Lnet/example/Inner;",
							Values: []ElementValuePair{{Name: "flag", Value: ElementValue{Tag: 'Z', Const: IntConst(1)}}},
						},
					}},
					{Name: "names", Value: ElementValue{
						Tag: '[',
						Array: []ElementValue{
							{Tag: 's', Const: StringConst("a")},
							{Tag: 's', Const: StringConst("b")},
						},
					}},
				},
			},
		},
		InvisibleAnnotations: []Annotation{{Type: "Lnet/example/Hidden;"}},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripMethodWithCode(t *testing.T) {
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Hello",
		SuperName:    "java/lang/Object",
		SourceFile:   "Hello.java",
		Methods: []*Method{
			{
				AccessFlags: 0x0009,
				Name:        "main",
				Desc:        "([Ljava/lang/String;)V",
				Exceptions:  []string{"java/io/IOException"},
				Code:        helloCode(),
			},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripExceptionHandlersAndStackMap(t *testing.T) {
	code := helloCode()
	code.Handlers = []ExceptionHandler{
		{Start: 0, End: 8, Handler: 8, Type: "java/lang/RuntimeException"},
		{Start: 0, End: 8, Handler: 8, Type: ""}, // catch-all
	}
	code.StackMap = []StackMapFrame{
		{Tag: 0},
		{Tag: 80, Stack: []VerificationType{{Tag: 7, Class: "java/lang/RuntimeException"}}},
		{Tag: 252, OffsetDelta: 3, Locals: []VerificationType{{Tag: 1}}},
		{
			Tag:         255,
			OffsetDelta: 2,
			Locals:      []VerificationType{{Tag: 7, Class: "java/lang/Object"}, {Tag: 2}},
			Stack:       []VerificationType{{Tag: 8, Offset: 4}},
		},
	}

	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Guarded",
		SuperName:    "java/lang/Object",
		Methods: []*Method{
			{AccessFlags: 0x0009, Name: "run", Desc: "()V", Code: code},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripInvokeDynamic(t *testing.T) {
	metafactory := MethodHandle{
		HandleKind: 6, // invokestatic
		Ref: MemberRef{
			Kind:  RefMethod,
			Class: "java/lang/invoke/LambdaMetafactory",
			Name:  "metafactory",
			Desc:  "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;",
		},
	}
	impl := MethodHandle{
		HandleKind: 6,
		Ref:        MemberRef{Kind: RefMethod, Class: "net/example/Lambdas", Name: "lambda$run$0", Desc: "()V"},
	}
	indy := DynamicConst{
		Invoke: true,
		Name:   "run",
		Desc:   "()Ljava/lang/Runnable;",
		Bootstrap: BootstrapMethod{
			Handle: metafactory,
			Args:   []Const{MethodTypeConst("()V"), impl, MethodTypeConst("()V")},
		},
	}

	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Lambdas",
		SuperName:    "java/lang/Object",
		Methods: []*Method{
			{
				AccessFlags: 0x0009,
				Name:        "makeRunnable",
				Desc:        "()Ljava/lang/Runnable;",
				Code: &Code{
					MaxStack:  1,
					MaxLocals: 0,
					Bytecode: []byte{
						0xba, 0x00, 0x00, 0x00, 0x00, // invokedynamic
						0xb0, // areturn
					},
					Sites: []ConstSite{{Offset: 1, Wide: true, Const: indy}},
				},
			},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripTableswitchKeepsLaterSites(t *testing.T) {
	// The switch payload must be sized correctly or the ldc after it would
	// be misread as operand data.
	code := &Code{
		MaxStack:  1,
		MaxLocals: 1,
		Bytecode: []byte{
			0x1a,                   // iload_0
			0xaa, 0x00, 0x00,       // tableswitch + padding to offset 4
			0x00, 0x00, 0x00, 0x14, // default -> 20
			0x00, 0x00, 0x00, 0x00, // low 0
			0x00, 0x00, 0x00, 0x01, // high 1
			0x00, 0x00, 0x00, 0x14, // case 0 -> 20
			0x00, 0x00, 0x00, 0x14, // case 1 -> 20
			0x12, 0x00, // ldc (offset 24)
			0x57, // pop
			0xb1, // return
		},
		Sites: []ConstSite{{Offset: 25, Wide: false, Const: StringConst("after-switch")}},
	}
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Switchy",
		SuperName:    "java/lang/Object",
		Methods:      []*Method{{AccessFlags: 0x0009, Name: "pick", Desc: "(I)V", Code: code}},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripMethodMetadata(t *testing.T) {
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x2601, // interface, annotation
		Name:         "net/example/Config",
		SuperName:    "java/lang/Object",
		Interfaces:   []string{"java/lang/annotation/Annotation"},
		Methods: []*Method{
			{
				AccessFlags:       0x0401,
				Name:              "count",
				Desc:              "()I",
				AnnotationDefault: &ElementValue{Tag: 'I', Const: IntConst(1)},
			},
			{
				AccessFlags: 0x0401,
				Name:        "apply",
				Desc:        "(Ljava/lang/String;I)V",
				Parameters: []Parameter{
					{Name: "name", AccessFlags: 0x0010},
					{Name: "", AccessFlags: 0x1000},
				},
				VisibleParameterAnnotations: [][]Annotation{
					{{Type: "Lnet/example/NotNull;"}},
					{},
				},
			},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripRecord(t *testing.T) {
	c := &Class{
		MajorVersion: 65,
		AccessFlags:  0x0031,
		Name:         "net/example/Point",
		SuperName:    "java/lang/Record",
		Record: &Record{
			Components: []RecordComponent{
				{Name: "x", Desc: "I"},
				{
					Name:               "label",
					Desc:               "Ljava/lang/String;",
					VisibleAnnotations: []Annotation{{Type: "Lnet/example/NotNull;"}},
				},
			},
		},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestRoundtripModuleInfo(t *testing.T) {
	c := &Class{
		MajorVersion: 65,
		AccessFlags:  0x8000,
		Name:         "module-info",
		Module: &Module{
			Name:    "net.example.widget",
			Flags:   0,
			Version: "1.2.3",
			Requires: []ModuleRequire{
				{Module: "java.base", Flags: 0x8000, Version: "21"},
				{Module: "java.logging"},
			},
			Exports: []ModulePackage{
				{Package: "net/example/api", To: []string{"net.example.client"}},
			},
			Opens: []ModulePackage{
				{Package: "net/example/internal"},
			},
			Uses: []string{"net/example/spi/Backend"},
			Provides: []ModuleProvide{
				{Service: "net/example/spi/Backend", With: []string{"net/example/internal/DefaultBackend"}},
			},
		},
		ModulePackages: []string{"net/example/api", "net/example/internal"},
	}
	out := roundtrip(t, c)
	assert.Equal(t, c, out)
}

func TestEncodeDeterministic(t *testing.T) {
	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Hello",
		SuperName:    "java/lang/Object",
		Methods:      []*Method{{AccessFlags: 0x0009, Name: "main", Desc: "([Ljava/lang/String;)V", Code: helloCode()}},
	}
	first, err := c.Encode()
	require.NoError(t, err)
	second, err := c.Encode()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseBadMagic(t *testing.T) {
	_, err := Parse([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseTruncated(t *testing.T) {
	// Every strict prefix of a valid class is missing bytes somewhere, so
	// Parse must fail on all of them.
	classes := map[string]*Class{
		"empty": {MajorVersion: 52, AccessFlags: 0x0021, Name: "net/example/Empty", SuperName: "java/lang/Object"},
		"with_code": {
			MajorVersion: 52,
			AccessFlags:  0x0021,
			Name:         "net/example/Hello",
			SuperName:    "java/lang/Object",
			Fields:       []*Field{{AccessFlags: 0x0019, Name: "COUNT", Desc: "I", ConstantValue: IntConst(42)}},
			Methods:      []*Method{{AccessFlags: 0x0009, Name: "main", Desc: "([Ljava/lang/String;)V", Code: helloCode()}},
		},
	}
	for name, c := range classes {
		t.Run(name, func(t *testing.T) {
			data, err := c.Encode()
			require.NoError(t, err)
			for n := range data {
				_, err := Parse(data[:n])
				assert.Error(t, err, "prefix length %d", n)
			}
		})
	}
}

func TestParseRejectsMalformedSwitchPayload(t *testing.T) {
	cases := []struct {
		name     string
		bytecode []byte
	}{
		{
			"lookupswitch_negative_pairs",
			[]byte{
				0xab, 0x00, 0x00, 0x00, // lookupswitch + padding
				0x00, 0x00, 0x00, 0x10, // default
				0xff, 0xff, 0xff, 0xfe, // npairs -2
			},
		},
		{
			"tableswitch_inverted_range",
			[]byte{
				0xaa, 0x00, 0x00, 0x00, // tableswitch + padding
				0x00, 0x00, 0x00, 0x10, // default
				0x00, 0x00, 0x00, 0x05, // low 5
				0x00, 0x00, 0x00, 0x01, // high 1
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Class{
				MajorVersion: 52,
				AccessFlags:  0x0021,
				Name:         "net/example/Broken",
				SuperName:    "java/lang/Object",
				Methods: []*Method{
					{
						AccessFlags: 0x0009,
						Name:        "broken",
						Desc:        "()V",
						Code:        &Code{MaxStack: 1, MaxLocals: 1, Bytecode: tc.bytecode},
					},
				},
			}
			data, err := c.Encode()
			require.NoError(t, err)

			// Must come back as an error, not a panic or a silent pass.
			_, err = Parse(data)
			assert.Error(t, err)
		})
	}
}

func TestEncodeRejectsOversizedMemberTable(t *testing.T) {
	// 70000 fields with a shared name keep the pool tiny while the field
	// count overflows its u16 slot.
	field := &Field{AccessFlags: 0x0002, Name: "x", Desc: "I"}
	fields := make([]*Field, 70000)
	for i := range fields {
		fields[i] = field
	}

	c := &Class{
		MajorVersion: 52,
		AccessFlags:  0x0021,
		Name:         "net/example/Huge",
		SuperName:    "java/lang/Object",
		Fields:       fields,
	}
	_, err := c.Encode()
	assert.ErrorIs(t, err, ErrCountOverflow)
}
