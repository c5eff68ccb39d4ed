package tag

import "testing"

func TestTagString(t *testing.T) {
	tests := []struct {
		want string
		tag  Tag
	}{
		{"object", Object},
		{"none", None},
		{"integer", Integer},
		{"bool", Bool},
		{"float", Float},
		{"complex", Complex},
		{"bytes", Bytes},
		{"bytearray", ByteArray},
		{"string", String},
		{"tuple", Tuple},
		{"list", List},
		{"dict", Dict},
		{"set", Set},
		{"function", Function},
		{"method", Method},
		{"type", Type},
		{"datetime", DateTime},
		{"host-callable", HostCallable},
		{"host-value", HostValue},
		{"exception", Exception},
		{"unsupported", Unsupported},
		{"unknown", Tag(200)},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.tag.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTagCodesAreStable(t *testing.T) {
	// Codes are part of the engine contract.
	if Object != 0 || None != 1 || Integer != 2 || String != 8 {
		t.Fatal("leading tag codes moved")
	}
	if Exception != 19 || Unsupported != 20 {
		t.Fatalf("trailing tag codes moved: exception=%d unsupported=%d", Exception, Unsupported)
	}
}

func TestParse(t *testing.T) {
	for i := Object; i <= Unsupported; i++ {
		got, ok := Parse(i.String())
		if !ok || got != i {
			t.Errorf("Parse(%q) = %v, %v", i.String(), got, ok)
		}
	}
	if _, ok := Parse("no-such-tag"); ok {
		t.Error("Parse accepted an unknown name")
	}
}

func TestPredicates(t *testing.T) {
	for _, tg := range []Tag{Tuple, List, Dict, Set} {
		if !tg.IsContainer() || tg.IsScalar() || tg.IsObjectLike() {
			t.Errorf("%s should only be a container", tg)
		}
	}
	for _, tg := range []Tag{Object, Function, Method, Type} {
		if !tg.IsObjectLike() || tg.IsScalar() {
			t.Errorf("%s should be object-like", tg)
		}
	}
	for _, tg := range []Tag{None, Integer, Bool, Float, Complex, Bytes, ByteArray, String, DateTime} {
		if !tg.IsScalar() {
			t.Errorf("%s should be scalar", tg)
		}
	}
	if !HostCallable.IsHostWrapper() || !HostValue.IsHostWrapper() || Function.IsHostWrapper() {
		t.Error("host wrapper predicate is wrong")
	}
	if Tag(99).Valid() || !Unsupported.Valid() {
		t.Error("Valid is wrong")
	}
}
