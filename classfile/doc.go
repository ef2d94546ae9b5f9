// Package classfile decodes JVM class files into a mutable tree model and
// encodes the model back to bytes.
//
// The model is fully symbolic: every constant pool reference is resolved to
// names, descriptors or values during Parse, and Encode rebuilds a fresh
// deduplicated pool. Nothing in the model holds a pool index, which is what
// lets a consumer splice fields and methods between classes that were
// decoded from different pools.
//
//	c, err := classfile.Parse(data)
//	c.VisibleAnnotations = append(c.VisibleAnnotations, classfile.Annotation{Type: "Lexample/Tag;"})
//	out, err := c.Encode()
//
// Bytecode is carried as raw bytes plus a table of constant reference sites;
// Encode patches each site against the rebuilt pool. Attributes the codec
// does not recognize are retained on the model for inspection but are not
// re-encoded, since an opaque payload cannot be relocated onto a new pool.
package classfile
