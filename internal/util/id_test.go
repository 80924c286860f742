package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("doc")
	if !strings.HasPrefix(id, "doc_") {
		t.Fatalf("NewID(doc) = %q, want doc_ prefix", id)
	}
	if len(id) != len("doc_")+36 {
		t.Fatalf("NewID(doc) length = %d", len(id))
	}
	if NewID("doc") == id {
		t.Fatal("expected unique ids")
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("expected bare uuid without prefix")
	}
}
