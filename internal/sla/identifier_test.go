package sla

import (
	"reflect"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"Open", "OPEN"},
		{"Créé", "CREE"},
		{"résolu", "RESOLU"},
		{"In Progress", "IN PROGRESS"},
	} {
		if got := NormalizeText(tc.in); got != tc.want {
			t.Fatalf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAsList(t *testing.T) {
	if got := AsList(""); got == nil || len(got) != 0 {
		t.Fatalf("AsList(\"\") = %#v, want empty", got)
	}
	got := AsList(" Open,, Résolu ,Closed,")
	want := []string{"Open", "Résolu", "Closed"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AsList = %v, want %v", got, want)
	}
}

func TestNormalizeList(t *testing.T) {
	got := Normalize([]string{"Résolu", "open", "Closed"})
	want := []string{"CLOSED", "OPEN", "RESOLU"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize = %v, want %v", got, want)
	}
}

func TestToIdentifiers(t *testing.T) {
	mapping := map[int]string{
		1: "Open",
		2: "In Progress",
		3: "Résolu",
		4: "RESOLU",
		5: "Closed",
	}
	// Both diacritic variants resolve, ascending per text, input order kept
	got := ToIdentifiers("resolu, open", mapping)
	want := []int{3, 4, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ToIdentifiers = %v, want %v", got, want)
	}
	// Duplicates across texts are dropped
	got = ToIdentifiers("Open,OPEN,Unknown", mapping)
	if !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("ToIdentifiers = %v, want [1]", got)
	}
	if got := ToIdentifiers("", mapping); got != nil {
		t.Fatalf("ToIdentifiers(\"\") = %v, want nil", got)
	}
}

func TestToIDSet(t *testing.T) {
	mapping := map[int]string{1: "Open", 2: "Closed"}
	set := ToIDSet("closed", mapping)
	if set.Has(1) || !set.Has(2) {
		t.Fatalf("set = %v", set)
	}
}
