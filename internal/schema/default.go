package schema

import (
	_ "embed"
	"sync"
)

//go:embed clinical.cue
var clinicalCUE string

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the built-in clinical catalog. It is compiled on first use
// and shared by every caller afterwards.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = CompileString(clinicalCUE, "clinical.cue")
	})
	return defaultCatalog, defaultErr
}

// Load returns the catalog compiled from dir, or the default catalog when
// dir is empty.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return Default()
	}
	return LoadDir(dir)
}
