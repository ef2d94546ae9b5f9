package classfile

// Class is the decoded form of one class file. Member and interface order
// is file order; Encode writes members back in model order.
type Class struct {
	MinorVersion uint16
	MajorVersion uint16
	AccessFlags  uint16
	Name         string // internal form, e.g. "net/example/Foo"
	Signature    string // generic signature, "" if absent
	SuperName    string // "" only for java/lang/Object and module-info
	Interfaces   []string

	SourceFile  string
	SourceDebug string // SourceDebugExtension payload

	// EnclosingMethod linkage. OuterMethod and OuterMethodDesc are empty
	// when the class is enclosed by a class rather than a method.
	OuterClass      string
	OuterMethod     string
	OuterMethodDesc string

	Module          *Module
	ModulePackages  []string
	ModuleMainClass string

	NestHost            string
	NestMembers         []string
	PermittedSubclasses []string

	InnerClasses []InnerClass
	Record       *Record

	Deprecated bool
	Synthetic  bool

	VisibleAnnotations       []Annotation
	InvisibleAnnotations     []Annotation
	VisibleTypeAnnotations   []TypeAnnotation
	InvisibleTypeAnnotations []TypeAnnotation

	// Attrs holds attributes the codec does not recognize. They are kept
	// for inspection only: their payloads reference the pool of the file
	// they came from and cannot be relocated, so Encode drops them.
	Attrs []RawAttr

	Fields  []*Field
	Methods []*Method
}

// Field is one field member.
type Field struct {
	AccessFlags   uint16
	Name          string
	Desc          string
	Signature     string
	ConstantValue Const // nil if absent

	Deprecated bool
	Synthetic  bool

	VisibleAnnotations       []Annotation
	InvisibleAnnotations     []Annotation
	VisibleTypeAnnotations   []TypeAnnotation
	InvisibleTypeAnnotations []TypeAnnotation

	Attrs []RawAttr
}

// Method is one method member.
type Method struct {
	AccessFlags uint16
	Name        string
	Desc        string
	Signature   string
	Exceptions  []string // internal names of declared thrown types
	Parameters  []Parameter

	AnnotationDefault *ElementValue
	Code              *Code

	Deprecated bool
	Synthetic  bool

	VisibleAnnotations       []Annotation
	InvisibleAnnotations     []Annotation
	VisibleTypeAnnotations   []TypeAnnotation
	InvisibleTypeAnnotations []TypeAnnotation

	VisibleParameterAnnotations   [][]Annotation
	InvisibleParameterAnnotations [][]Annotation

	Attrs []RawAttr
}

// Parameter is one MethodParameters entry. Name may be empty.
type Parameter struct {
	Name        string
	AccessFlags uint16
}

// InnerClass is one InnerClasses table entry. Name is the internal name of
// the inner class, Outer the enclosing class ("" for local/anonymous),
// Inner the simple name ("" for anonymous).
type InnerClass struct {
	Name        string
	Outer       string
	Inner       string
	AccessFlags uint16
}

// Record is the Record attribute. Present (possibly with zero components)
// iff the class is a record.
type Record struct {
	Components []RecordComponent
}

// RecordComponent is one record component.
type RecordComponent struct {
	Name      string
	Desc      string
	Signature string

	VisibleAnnotations       []Annotation
	InvisibleAnnotations     []Annotation
	VisibleTypeAnnotations   []TypeAnnotation
	InvisibleTypeAnnotations []TypeAnnotation

	Attrs []RawAttr
}

// RawAttr is an attribute preserved verbatim from the input.
type RawAttr struct {
	Name string
	Data []byte
}

// Module is the Module attribute of a module-info class.
type Module struct {
	Name     string
	Flags    uint16
	Version  string
	Requires []ModuleRequire
	Exports  []ModulePackage
	Opens    []ModulePackage
	Uses     []string
	Provides []ModuleProvide
}

// ModuleRequire is one requires directive.
type ModuleRequire struct {
	Module  string
	Flags   uint16
	Version string
}

// ModulePackage is one exports or opens directive.
type ModulePackage struct {
	Package string
	Flags   uint16
	To      []string
}

// ModuleProvide is one provides directive.
type ModuleProvide struct {
	Service string
	With    []string
}
