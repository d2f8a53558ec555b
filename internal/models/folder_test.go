package models

import "testing"

func TestFolderListLookups(t *testing.T) {
	folders := FolderList{
		{ID: 3, Name: "fasteners"},
		{ID: 1, Name: "gears"},
	}

	if got := folders.NameOf(3); got != "fasteners" {
		t.Errorf("NameOf(3) = %q, want %q", got, "fasteners")
	}
	if got := folders.NameOf(99); got != "" {
		t.Errorf("NameOf(99) = %q, want empty", got)
	}

	id, ok := folders.IDOf("gears")
	if !ok || id != 1 {
		t.Errorf("IDOf(gears) = (%d, %v), want (1, true)", id, ok)
	}
	if _, ok := folders.IDOf("missing"); ok {
		t.Error("IDOf(missing) should not resolve")
	}

	if !folders.Contains(1) || folders.Contains(2) {
		t.Error("Contains mismatch")
	}

	sorted := folders.Sorted()
	if sorted[0].ID != 1 || sorted[1].ID != 3 {
		t.Errorf("Sorted order wrong: %v", sorted)
	}
	if folders[0].ID != 3 {
		t.Error("Sorted must not mutate the receiver")
	}
}

func TestPropertyMap(t *testing.T) {
	if PropertyMap(nil) != nil {
		t.Error("PropertyMap(nil) should be nil")
	}
	props := []Property{
		{Name: "material", Value: "steel"},
		{Name: "part_no", Value: "A-100"},
	}
	m := PropertyMap(props)
	if m["material"] != "steel" || m["part_no"] != "A-100" {
		t.Errorf("unexpected map: %v", m)
	}
	keys := SortedKeys(m)
	if len(keys) != 2 || keys[0] != "material" || keys[1] != "part_no" {
		t.Errorf("SortedKeys = %v", keys)
	}
}

func TestModelReady(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{StateFinished, true},
		{StateProcessing, false},
		{StateFailed, false},
		{"", false},
	}
	for _, tt := range tests {
		m := Model{State: tt.state}
		if got := m.Ready(); got != tt.want {
			t.Errorf("Ready() with state %q = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestPageDataHasNext(t *testing.T) {
	if (PageData{CurrentPage: 1, LastPage: 1}).HasNext() {
		t.Error("single page should not have next")
	}
	if !(PageData{CurrentPage: 1, LastPage: 3}).HasNext() {
		t.Error("page 1 of 3 should have next")
	}
}
