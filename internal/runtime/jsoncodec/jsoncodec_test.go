package jsoncodec

import (
	"testing"
)

type testPayload struct {
	ID       int       `json:"id"`
	Operands []float64 `json:"operands"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: 42, Operands: []float64{10.5, 3.25}}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out testPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if out.ID != in.ID || len(out.Operands) != 2 || out.Operands[0] != 10.5 || out.Operands[1] != 3.25 {
		t.Fatalf("expected round trip to match, got %#v", out)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var out testPayload
	if err := Unmarshal([]byte("{"), &out); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		`{"id":1}`:       true,
		`[1,2]`:          true,
		`{"id":`:         false,
		`not json`:       false,
		`{"id":1} trail`: false,
	}
	for in, want := range cases {
		if got := Valid([]byte(in)); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}
