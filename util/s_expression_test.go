// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"testing"
)

func TestParseSExps(t *testing.T) {
	sexps, err := ParseSExps(`
; a comment
(add v2 v0 -3)
(branch < v1 10 => b1 b2) sym`)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(sexps) != 3 {
		t.Fatalf("read %d expressions", len(sexps))
	}
	if sexps[0].String() != "(add v2 v0 -3)" {
		t.Errorf("first is %s", sexps[0])
	}
	if sexps[0].List[3].Kind != SExpInt || sexps[0].List[3].Integer != -3 {
		t.Errorf("-3 read as %v", sexps[0].List[3])
	}
	if !sexps[1].IsForm("branch") || !sexps[1].List[4].IsSymbol("=>") {
		t.Errorf("second is %s", sexps[1])
	}
	if !sexps[2].IsSymbol("sym") {
		t.Errorf("third is %s", sexps[2])
	}
}

func TestParseSExpErrors(t *testing.T) {
	for _, text := range []string{"(a (b)", ")", "(a #)", "a b"} {
		if _, err := ParseSExp(text); err == nil {
			t.Errorf("no error for %q", text)
		}
	}
}
