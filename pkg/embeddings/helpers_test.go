package embeddings

import "os"

// writeFile is a tiny convenience used by this package's white-box tests to
// seed a fixture file without pulling in os.WriteFile's default permission
// boilerplate at every call site.
func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
