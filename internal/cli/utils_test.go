package cli

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/partcli/internal/models"
)

func TestParseUUIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	got, err := ParseUUIDs([]string{a.String(), " " + b.String() + " "})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("got %v", got)
	}

	if _, err := ParseUUIDs([]string{"not-a-uuid"}); err == nil {
		t.Error("invalid uuid should error")
	}
}

func TestResolveFolders(t *testing.T) {
	folders := models.FolderList{{ID: 1, Name: "gears"}, {ID: 7, Name: "bolts"}}

	got, err := ResolveFolders([]string{"gears", "7", "bolts"}, folders)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{1, 7, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}

	if _, err := ResolveFolders([]string{"missing"}, folders); err == nil {
		t.Error("unknown folder name should error")
	}
}

func TestStringList(t *testing.T) {
	var s StringList
	if err := s.Set("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("b, c"); err != nil {
		t.Fatal(err)
	}
	if len(s) != 3 || s[0] != "a" || s[1] != "b" || s[2] != "c" {
		t.Errorf("got %v", s)
	}
	if s.String() != "a,b,c" {
		t.Errorf("String() = %q", s.String())
	}
}
