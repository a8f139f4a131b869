package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/ymsl/types"
)

// ---------------------------------------------------------------------------
// Module serialization
// ---------------------------------------------------------------------------

// MarshalModule encodes m as an image. Imports are recorded by name only;
// builtins by name only.
func MarshalModule(m *Module) ([]byte, error) {
	enc := &typeEncoder{refs: make(map[*types.Type]int)}
	img := moduleImage{
		Name:       m.Name,
		ID:         m.ID[:],
		FuncBase:   m.FuncBase,
		GlobalBase: m.GlobalBase,
		StringBase: m.StringBase,
		Strings:    m.Strings,
	}
	for _, imp := range m.Imports {
		img.Imports = append(img.Imports, imp.Name)
	}
	for _, v := range m.Globals {
		img.Globals = append(img.Globals, varImage{
			Name:  v.Name(),
			Type:  enc.ref(v.Type()),
			Index: v.Index(),
		})
	}
	for _, f := range m.Functions {
		fi := funcImage{
			Name:  f.Name(),
			Type:  enc.ref(f.Type()),
			Index: f.Index(),
		}
		if f.IsBuiltin() {
			fi.Builtin = true
		} else {
			fi.Code = wordsToUint32(f.Code().words)
			fi.Locals = make([]byte, len(f.locals))
			for i, k := range f.locals {
				fi.Locals[i] = byte(k)
			}
		}
		img.Functions = append(img.Functions, fi)
	}
	if m.Init != nil {
		img.Init = wordsToUint32(m.Init.words)
	}
	img.Types = enc.list

	body, err := cborEncMode.Marshal(&img)
	if err != nil {
		return nil, fmt.Errorf("vm: marshal module %s: %w", m.Name, err)
	}
	out := make([]byte, ImageHeaderSize, ImageHeaderSize+len(body))
	copy(out, ImageMagic[:])
	binary.BigEndian.PutUint16(out[4:], ImageVersion)
	return append(out, body...), nil
}

// typeEncoder assigns 1-based references to types, emitting components
// before the types that use them.
type typeEncoder struct {
	refs map[*types.Type]int
	list []typeImage
}

func (e *typeEncoder) ref(t *types.Type) int {
	if r, ok := e.refs[t]; ok {
		return r
	}
	img := typeImage{Kind: uint8(t.Kind()), Name: t.Name()}
	switch t.Kind() {
	case types.Array, types.Set:
		img.Elem = e.ref(t.Elem())
	case types.Map:
		img.Key = e.ref(t.Key())
		img.Elem = e.ref(t.Elem())
	case types.Function:
		img.Output = e.ref(t.Output())
		for _, in := range t.Inputs() {
			img.Inputs = append(img.Inputs, e.ref(in))
		}
	case types.Enum:
		for _, c := range t.EnumConsts() {
			img.Consts = append(img.Consts, constImage{Name: c.Name, Value: c.Value})
		}
	}
	e.list = append(e.list, img)
	r := len(e.list)
	e.refs[t] = r
	return r
}
