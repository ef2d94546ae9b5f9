package classfile

import "errors"

var (
	ErrBadMagic      = errors.New("classfile: bad magic")
	ErrTruncated     = errors.New("classfile: truncated input")
	ErrPoolIndex     = errors.New("classfile: constant pool index out of range")
	ErrPoolOverflow  = errors.New("classfile: constant pool overflow")
	ErrCountOverflow = errors.New("classfile: table size exceeds class file limit")
)
