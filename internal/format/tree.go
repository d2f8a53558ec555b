package format

import (
	"fmt"
	"io"

	"github.com/hyperjump/partcli/internal/assembly"
)

// WriteTree writes an assembly tree with box-drawing connectors. Stub nodes
// are marked unresolved.
func WriteTree(w io.Writer, root *assembly.Node) error {
	if err := writeTreeNode(w, root, "", true, true); err != nil {
		return err
	}
	return nil
}

func writeTreeNode(w io.Writer, n *assembly.Node, prefix string, isLast, isRoot bool) error {
	label := n.Name
	if label == "" {
		label = n.UUID.String()
	}
	if n.FolderName != "" {
		label += " (" + n.FolderName + ")"
	}
	if n.Unresolved {
		label += " [unresolved]"
	}

	if isRoot {
		if _, err := fmt.Fprintln(w, label); err != nil {
			return err
		}
	} else {
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		if _, err := fmt.Fprintln(w, prefix+connector+label); err != nil {
			return err
		}
	}

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	for i, c := range n.Children {
		if err := writeTreeNode(w, c, childPrefix, i == len(n.Children)-1, false); err != nil {
			return err
		}
	}
	return nil
}
