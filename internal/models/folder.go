package models

import "sort"

// Folder is a container of models on the platform.
type Folder struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// FolderList is the set of folders in a tenant.
type FolderList []Folder

// Sorted returns the folders ordered by ID.
func (f FolderList) Sorted() FolderList {
	out := append(FolderList(nil), f...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NameOf returns the folder name for id, or "" if unknown.
func (f FolderList) NameOf(id uint32) string {
	for _, folder := range f {
		if folder.ID == id {
			return folder.Name
		}
	}
	return ""
}

// IDOf returns the folder ID for name, or (0, false) if unknown.
func (f FolderList) IDOf(name string) (uint32, bool) {
	for _, folder := range f {
		if folder.Name == name {
			return folder.ID, true
		}
	}
	return 0, false
}

// Contains reports whether id is in the list.
func (f FolderList) Contains(id uint32) bool {
	for _, folder := range f {
		if folder.ID == id {
			return true
		}
	}
	return false
}
