package zip

import (
	"archive/zip"
	"fmt"
	"io"
)

// Entry is one file in a bundle.
type Entry struct {
	Name string
	Data []byte
}

// WriteBundle streams the entries as a zip archive. Entries with duplicate
// names get a numeric suffix so nothing silently overwrites.
func WriteBundle(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := map[string]int{}
	for _, entry := range entries {
		name := entry.Name
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%d_%s", n, name)
		}
		seen[entry.Name]++
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("write zip entry %s: %w", name, err)
		}
	}
	return zw.Close()
}
