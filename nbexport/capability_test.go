package nbexport

import (
	"encoding/json"
	"testing"
)

func TestCapabilityContains(t *testing.T) {
	mask := CapTeX | CapWebPDF
	if !mask.Contains(CapTeX) || !mask.Contains(CapWebPDF) {
		t.Fatalf("expected mask to contain its own bits")
	}
	if mask.Contains(CapQtPDF) {
		t.Fatalf("mask must not contain qtpdf")
	}
	if mask.Contains(CapNone) {
		t.Fatalf("the empty capability is never contained")
	}
	if CapNone.Contains(CapTeX) {
		t.Fatalf("the empty mask contains nothing")
	}
}

func TestCapabilitySetOps(t *testing.T) {
	if got := CapTeX.Union(CapQtPDF); got != CapTeX|CapQtPDF {
		t.Fatalf("union: got %s", got)
	}
	if got := CapAll.Intersect(CapWebPDF); got != CapWebPDF {
		t.Fatalf("intersect: got %s", got)
	}
	if !CapNone.IsZero() || CapTeX.IsZero() {
		t.Fatalf("zero check mismatch")
	}
}

func TestDefaultCapabilitiesExcludeQtPDF(t *testing.T) {
	mask := DefaultCapabilities()
	if !mask.Contains(CapTeX) || !mask.Contains(CapWebPDF) {
		t.Fatalf("defaults must include tex and webpdf, got %s", mask)
	}
	if mask.Contains(CapQtPDF) {
		t.Fatalf("defaults must exclude qtpdf, got %s", mask)
	}
}

func TestCapabilityString(t *testing.T) {
	cases := []struct {
		mask Capability
		want string
	}{
		{CapNone, "none"},
		{CapTeX, "tex"},
		{CapTeX | CapWebPDF, "tex|webpdf"},
		{CapAll, "tex|webpdf|qtpdf"},
	}
	for _, tc := range cases {
		if got := tc.mask.String(); got != tc.want {
			t.Fatalf("String(%d): expected %q, got %q", tc.mask, tc.want, got)
		}
	}
}

func TestParseCapability(t *testing.T) {
	cases := []struct {
		input string
		want  Capability
	}{
		{"", CapNone},
		{"none", CapNone},
		{"tex", CapTeX},
		{"tex,webpdf", CapTeX | CapWebPDF},
		{"tex|qtpdf", CapTeX | CapQtPDF},
		{" WEBPDF ", CapWebPDF},
		{"all", CapAll},
		{"default", DefaultCapabilities()},
	}
	for _, tc := range cases {
		got, err := ParseCapability(tc.input)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: expected %s, got %s", tc.input, tc.want, got)
		}
	}

	if _, err := ParseCapability("tex,carrier-pigeon"); err == nil {
		t.Fatalf("expected unknown backend name to fail")
	} else if KindFromError(err) != KindValidation {
		t.Fatalf("expected validation kind, got %v", err)
	}
}

func TestCapabilityNames(t *testing.T) {
	names := CapabilityNames(CapAll)
	if len(names) != 3 || names[0] != "tex" || names[1] != "webpdf" || names[2] != "qtpdf" {
		t.Fatalf("expected priority-ordered names, got %v", names)
	}
	if name := CapabilityName(CapWebPDF); name != "webpdf" {
		t.Fatalf("expected webpdf, got %q", name)
	}
	if names := CapabilityNames(CapQtPDF); len(names) != 1 || names[0] != "qtpdf" {
		t.Fatalf("expected the mask's own names only, got %v", names)
	}
}

func TestCapabilityTextRoundTrip(t *testing.T) {
	raw, err := json.Marshal(CapTeX | CapQtPDF)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"tex|qtpdf"` {
		t.Fatalf("unexpected encoding %s", raw)
	}

	var mask Capability
	if err := json.Unmarshal(raw, &mask); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if mask != CapTeX|CapQtPDF {
		t.Fatalf("round trip lost bits: %s", mask)
	}

	if err := json.Unmarshal([]byte(`"tex,scribus"`), &mask); err == nil {
		t.Fatalf("expected unknown backend name to fail")
	}
}
