package vm

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Image format
// ---------------------------------------------------------------------------

// An image is the 4-byte magic "YMSL", a big-endian uint16 format version
// and a CBOR-encoded module record.

// ImageMagic identifies a YMSL module image.
var ImageMagic = [4]byte{'Y', 'M', 'S', 'L'}

// ImageVersion is the format version written by MarshalModule.
// v1: initial format
const ImageVersion uint16 = 1

// ImageHeaderSize is magic(4) + version(2).
const ImageHeaderSize = 6

// ---------------------------------------------------------------------------
// Image Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic     = errors.New("invalid magic number: expected YMSL")
	ErrVersionMismatch  = errors.New("image version mismatch")
	ErrCorruptImage     = errors.New("corrupt image data")
	ErrInvalidTypeRef   = errors.New("invalid type reference")
	ErrUnknownBuiltin   = errors.New("unknown builtin")
	ErrUnresolvedImport = errors.New("unresolved import")
)

// ---------------------------------------------------------------------------
// Wire records
// ---------------------------------------------------------------------------

// cborEncMode uses canonical mode so equal modules encode to equal bytes
// and content hashes are stable.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type moduleImage struct {
	Name       string      `cbor:"1,keyasint"`
	ID         []byte      `cbor:"2,keyasint"`
	Imports    []string    `cbor:"3,keyasint,omitempty"`
	FuncBase   int         `cbor:"4,keyasint"`
	GlobalBase int         `cbor:"5,keyasint"`
	StringBase int         `cbor:"6,keyasint"`
	Types      []typeImage `cbor:"7,keyasint,omitempty"`
	Globals    []varImage  `cbor:"8,keyasint,omitempty"`
	Functions  []funcImage `cbor:"9,keyasint,omitempty"`
	Strings    []string    `cbor:"10,keyasint,omitempty"`
	Init       []uint32    `cbor:"11,keyasint,omitempty"`
}

// typeImage describes one type. Component types are referenced by their
// 1-based position in the module's type list and always precede it.
type typeImage struct {
	Kind   uint8        `cbor:"1,keyasint"`
	Name   string       `cbor:"2,keyasint,omitempty"`
	Elem   int          `cbor:"3,keyasint,omitempty"`
	Key    int          `cbor:"4,keyasint,omitempty"`
	Output int          `cbor:"5,keyasint,omitempty"`
	Inputs []int        `cbor:"6,keyasint,omitempty"`
	Consts []constImage `cbor:"7,keyasint,omitempty"`
}

type constImage struct {
	Name  string `cbor:"1,keyasint"`
	Value int    `cbor:"2,keyasint"`
}

type varImage struct {
	Name  string `cbor:"1,keyasint"`
	Type  int    `cbor:"2,keyasint"`
	Index int    `cbor:"3,keyasint"`
}

type funcImage struct {
	Name    string   `cbor:"1,keyasint"`
	Type    int      `cbor:"2,keyasint"`
	Index   int      `cbor:"3,keyasint"`
	Builtin bool     `cbor:"4,keyasint,omitempty"`
	Code    []uint32 `cbor:"5,keyasint,omitempty"`
	Locals  []byte   `cbor:"6,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Builtin registry
// ---------------------------------------------------------------------------

// Builtins maps builtin names to host functions. Images record builtins by
// name; loading re-binds them through this registry.
type Builtins map[string]BuiltinFunc

// Register adds fn under name, replacing any earlier binding.
func (b Builtins) Register(name string, fn BuiltinFunc) {
	b[name] = fn
}

func wordsToUint32(ws []Word) []uint32 {
	out := make([]uint32, len(ws))
	for i, w := range ws {
		out[i] = uint32(w)
	}
	return out
}

func uint32ToWords(us []uint32) []Word {
	out := make([]Word, len(us))
	for i, u := range us {
		out[i] = Word(u)
	}
	return out
}
