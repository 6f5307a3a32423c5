package atomicfile

import (
	"fmt"
	"os"
)

// Write atomically replaces path with data. It stages data in a surrogate
// beside path and commits it; if any step fails the surrogate is removed and
// path is left untouched.
func Write(path string, data []byte, perm os.FileMode) error {
	p, err := Create(path, perm)
	if err != nil {
		return fmt.Errorf("create surrogate: %w", err)
	}
	if _, err := p.Write(data); err != nil {
		p.Rollback()
		return fmt.Errorf("write surrogate: %w", err)
	}
	if err := p.Commit(); err != nil {
		return fmt.Errorf("commit surrogate: %w", err)
	}
	return nil
}
