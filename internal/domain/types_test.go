package domain

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const sampleBookYAML = `hymn_book:
  intro_name: "Hinario"
  name: "Estrela do Mar"
  owner: "Maria"
  cover_image_path: "cover.png"
  hymns:
    - number: 1
      title: "Abertura"
      style: "Valsa"
      offered_to: "Padrinho"
      text: "Primeira linha\nSegunda linha\n\nTerceira linha"
      repetitions: "1-2,3-4"
      received_at: 2018-03-24
    - number: 2
      title: "Firmeza"
      text: "So uma linha"
`

func TestBookYAMLRoundTrip(t *testing.T) {
	var m Manifest
	if err := yaml.Unmarshal([]byte(sampleBookYAML), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b := m.Book
	if b.Name != "Estrela do Mar" || b.Owner != "Maria" {
		t.Fatalf("book metadata mismatch: %+v", b)
	}
	if len(b.Hymns) != 2 {
		t.Fatalf("expected 2 hymns, got %d", len(b.Hymns))
	}
	h := b.Hymns[0]
	if h.Number != 1 || h.Title != "Abertura" || h.Repetitions != "1-2,3-4" {
		t.Fatalf("hymn fields mismatch: %+v", h)
	}
	if h.ReceivedAt == nil {
		t.Fatalf("expected received_at to parse as a date")
	}
	if h.ReceivedAt.Year() != 2018 || h.ReceivedAt.Month() != time.March || h.ReceivedAt.Day() != 24 {
		t.Fatalf("received_at parsed wrong: %v", h.ReceivedAt)
	}
	if b.Hymns[1].ReceivedAt != nil {
		t.Fatalf("expected nil received_at when absent")
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), "hymn_book:") || !strings.Contains(string(out), "offered_to: Padrinho") {
		t.Fatalf("round-tripped yaml missing expected keys:\n%s", out)
	}
}

func TestBookValidate(t *testing.T) {
	var m Manifest
	if err := yaml.Unmarshal([]byte(sampleBookYAML), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := m.Book.Validate(); err != nil {
		t.Fatalf("expected valid book, got %v", err)
	}

	noName := m.Book
	noName.Name = "  "
	if err := noName.Validate(); err == nil {
		t.Fatalf("expected error for empty name")
	}

	empty := Book{Name: "x"}
	if err := empty.Validate(); err == nil {
		t.Fatalf("expected error for book without hymns")
	}
}

func TestHymnValidate(t *testing.T) {
	good := Hymn{Number: 3, Title: "t", Text: "line"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid hymn, got %v", err)
	}

	cases := []struct {
		name string
		h    Hymn
		want string
	}{
		{"zero number", Hymn{Number: 0, Title: "t", Text: "x"}, "must be >= 1"},
		{"no title", Hymn{Number: 1, Text: "x"}, "missing title"},
		{"no text", Hymn{Number: 1, Title: "t"}, "missing text"},
		{"bad repeats", Hymn{Number: 1, Title: "t", Text: "x", Repetitions: "1-2,zz"}, "zz"},
	}
	for _, c := range cases {
		err := c.h.Validate()
		if err == nil {
			t.Fatalf("%s: expected error, got none", c.name)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: expected error containing %q, got %q", c.name, c.want, err.Error())
		}
	}
}

func TestHymnStanzas(t *testing.T) {
	h := Hymn{Text: "\na\nb\n\nc\nd\n"}
	got := h.Stanzas()
	if len(got) != 2 {
		t.Fatalf("expected 2 stanzas, got %d: %q", len(got), got)
	}
	if got[0] != "a\nb" || got[1] != "c\nd" {
		t.Fatalf("stanzas split wrong: %q", got)
	}
}
