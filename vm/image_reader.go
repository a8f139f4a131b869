package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/ymsl/types"
)

// ImageOptions supplies what an image does not carry itself.
type ImageOptions struct {
	// Types receives the decoded types. Structural types are shared with
	// anything already in the table; enums are created afresh.
	Types *types.Table

	// Builtins re-binds builtin functions by name.
	Builtins Builtins

	// Resolve returns an already loaded module by name. Required when the
	// image has imports.
	Resolve func(name string) (*Module, error)
}

// ReadImageHeader checks the magic number and returns the format version.
func ReadImageHeader(data []byte) (uint16, error) {
	if len(data) < ImageHeaderSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptImage, len(data))
	}
	if !bytes.Equal(data[:4], ImageMagic[:]) {
		return 0, ErrInvalidMagic
	}
	return binary.BigEndian.Uint16(data[4:]), nil
}

// UnmarshalModule decodes an image produced by MarshalModule.
func UnmarshalModule(data []byte, opts ImageOptions) (*Module, error) {
	version, err := ReadImageHeader(data)
	if err != nil {
		return nil, err
	}
	if version != ImageVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, ImageVersion)
	}

	var img moduleImage
	if err := cbor.Unmarshal(data[ImageHeaderSize:], &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if opts.Types == nil {
		opts.Types = types.NewTable()
	}

	m := &Module{
		Name:       img.Name,
		FuncBase:   img.FuncBase,
		GlobalBase: img.GlobalBase,
		StringBase: img.StringBase,
		Strings:    img.Strings,
	}
	if len(img.ID) > 0 {
		if m.ID, err = uuid.FromBytes(img.ID); err != nil {
			return nil, fmt.Errorf("%w: module id: %v", ErrCorruptImage, err)
		}
	}

	for _, name := range img.Imports {
		if opts.Resolve == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedImport, name)
		}
		imp, err := opts.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvedImport, name, err)
		}
		m.Imports = append(m.Imports, imp)
	}

	typs, err := decodeTypes(img.Types, opts.Types)
	if err != nil {
		return nil, err
	}
	typeAt := func(ref int) (*types.Type, error) {
		if ref < 1 || ref > len(typs) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidTypeRef, ref)
		}
		return typs[ref-1], nil
	}

	for _, vi := range img.Globals {
		t, err := typeAt(vi.Type)
		if err != nil {
			return nil, err
		}
		m.Globals = append(m.Globals, NewVariable(vi.Name, t, Global, vi.Index))
	}

	for _, fi := range img.Functions {
		t, err := typeAt(fi.Type)
		if err != nil {
			return nil, err
		}
		if t.Kind() != types.Function {
			return nil, fmt.Errorf("%w: function %s has type %s", ErrInvalidTypeRef, fi.Name, t)
		}
		if fi.Builtin {
			fn, ok := opts.Builtins[fi.Name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, fi.Name)
			}
			m.Functions = append(m.Functions, NewBuiltin(fi.Name, t, fi.Index, fn))
			continue
		}
		if len(fi.Locals) < t.NumInputs() {
			return nil, fmt.Errorf("%w: function %s frame smaller than its parameters",
				ErrCorruptImage, fi.Name)
		}
		locals := make([]Kind, len(fi.Locals))
		for i, k := range fi.Locals {
			locals[i] = Kind(k)
		}
		code := &Code{words: uint32ToWords(fi.Code)}
		m.Functions = append(m.Functions, NewCompiled(fi.Name, t, fi.Index, code, locals))
	}

	if len(img.Init) > 0 {
		m.Init = &Code{words: uint32ToWords(img.Init)}
	}
	return m, nil
}

// decodeTypes rebuilds the type list in order. Every reference must point
// at an earlier entry.
func decodeTypes(imgs []typeImage, tt *types.Table) ([]*types.Type, error) {
	out := make([]*types.Type, len(imgs))
	for i, img := range imgs {
		get := func(ref int) (*types.Type, error) {
			if ref < 1 || ref > i {
				return nil, fmt.Errorf("%w: type %d refers to %d", ErrInvalidTypeRef, i+1, ref)
			}
			return out[ref-1], nil
		}

		k := types.Kind(img.Kind)
		var err error
		switch {
		case k.IsPrimitive():
			out[i] = tt.Primitive(k)
		case k == types.Array || k == types.Set:
			var elem *types.Type
			if elem, err = get(img.Elem); err == nil {
				if k == types.Array {
					out[i] = tt.ArrayOf(elem)
				} else {
					out[i] = tt.SetOf(elem)
				}
			}
		case k == types.Map:
			var key, elem *types.Type
			if key, err = get(img.Key); err == nil {
				if elem, err = get(img.Elem); err == nil {
					out[i] = tt.MapOf(key, elem)
				}
			}
		case k == types.Function:
			var output *types.Type
			if output, err = get(img.Output); err != nil {
				break
			}
			inputs := make([]*types.Type, len(img.Inputs))
			for j, ref := range img.Inputs {
				if inputs[j], err = get(ref); err != nil {
					break
				}
			}
			if err == nil {
				out[i] = tt.FunctionOf(output, inputs...)
			}
		case k == types.Enum:
			consts := make([]types.EnumConst, len(img.Consts))
			for j, c := range img.Consts {
				consts[j] = types.EnumConst{Name: c.Name, Value: c.Value}
			}
			out[i] = tt.EnumOf(img.Name, consts)
		default:
			err = fmt.Errorf("%w: unknown kind %d", ErrInvalidTypeRef, img.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
