package types

import "testing"

func TestPrimitiveSingletons(t *testing.T) {
	tt := NewTable()
	for k := Void; k <= String; k++ {
		a := tt.Primitive(k)
		b := tt.Primitive(k)
		if a != b {
			t.Errorf("Primitive(%s) returned distinct types", k)
		}
		if a.Kind() != k {
			t.Errorf("Primitive(%s).Kind() = %s", k, a.Kind())
		}
	}
	if tt.Int() != tt.Primitive(Int) {
		t.Error("Int() differs from Primitive(Int)")
	}
	if tt.StringType() != tt.Primitive(String) {
		t.Error("StringType() differs from Primitive(String)")
	}
}

func TestPrimitiveRejectsComposite(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Primitive(Array) should panic")
		}
	}()
	NewTable().Primitive(Array)
}

func TestStructuralTypesAreShared(t *testing.T) {
	tt := NewTable()

	if tt.ArrayOf(tt.Int()) != tt.ArrayOf(tt.Int()) {
		t.Error("ArrayOf(int) is not idempotent")
	}
	if tt.ArrayOf(tt.Int()) == tt.ArrayOf(tt.Float()) {
		t.Error("array<int> and array<float> share a type")
	}
	if tt.SetOf(tt.Int()) == tt.ArrayOf(tt.Int()) {
		t.Error("set<int> and array<int> share a type")
	}
	if tt.MapOf(tt.StringType(), tt.Int()) != tt.MapOf(tt.StringType(), tt.Int()) {
		t.Error("MapOf is not idempotent")
	}
	if tt.MapOf(tt.StringType(), tt.Int()) == tt.MapOf(tt.Int(), tt.StringType()) {
		t.Error("map key and element are interchangeable")
	}

	f1 := tt.FunctionOf(tt.Int(), tt.Int(), tt.Float())
	f2 := tt.FunctionOf(tt.Int(), tt.Int(), tt.Float())
	if f1 != f2 {
		t.Error("FunctionOf is not idempotent")
	}
	if f1 == tt.FunctionOf(tt.Int(), tt.Float(), tt.Int()) {
		t.Error("parameter order ignored")
	}
	if tt.FunctionOf(tt.Void()) == tt.FunctionOf(tt.Void(), tt.Void()) {
		t.Error("arity ignored")
	}

	nested := tt.ArrayOf(tt.ArrayOf(tt.Int()))
	if nested.Elem() != tt.ArrayOf(tt.Int()) {
		t.Error("nested element type not shared")
	}
}

func TestEnumsAreNominal(t *testing.T) {
	tt := NewTable()
	consts := []EnumConst{{"Red", 0}, {"Green", 1}}

	a := tt.EnumOf("Color", consts)
	b := tt.EnumOf("Color", consts)
	if a == b {
		t.Fatal("identical enum declarations share a type")
	}
	if a.ID() == b.ID() {
		t.Error("enum ids collide")
	}
	if v, ok := a.EnumValue("Green"); !ok || v != 1 {
		t.Errorf("EnumValue(Green) = %d, %v; want 1, true", v, ok)
	}
	if a.EnumIndex("Blue") != -1 {
		t.Error("EnumIndex(Blue) should be -1")
	}
}

func TestTypeString(t *testing.T) {
	tt := NewTable()
	tests := []struct {
		typ  *Type
		want string
	}{
		{tt.Int(), "int"},
		{tt.ArrayOf(tt.Float()), "array<float>"},
		{tt.MapOf(tt.StringType(), tt.SetOf(tt.Int())), "map<string, set<int>>"},
		{tt.FunctionOf(tt.Void(), tt.Int(), tt.Boolean()), "function(int, boolean): void"},
		{tt.EnumOf("Dir", nil), "enum Dir"},
	}
	for _, tc := range tests {
		if got := tc.typ.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestAllIsOrdered(t *testing.T) {
	tt := NewTable()
	arr := tt.ArrayOf(tt.Int())
	fn := tt.FunctionOf(arr, tt.Int())

	seen := make(map[*Type]int)
	for i, typ := range tt.All() {
		seen[typ] = i
	}
	if seen[arr] <= seen[tt.Int()] {
		t.Error("array registered before its element")
	}
	if seen[fn] <= seen[arr] {
		t.Error("function registered before its output")
	}
	if tt.Len() != len(seen) {
		t.Errorf("Len() = %d, want %d", tt.Len(), len(seen))
	}
}
