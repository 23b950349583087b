package domain

import (
	"platecore/testutil"
	"strings"
	"testing"
)

// TestDomainDoesNotImportInternal keeps the domain layer free of the packages that
// implement it. Storage drivers, the CLI and the engine import domain, never the reverse.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		return testutil.InternalImport(path) || strings.HasPrefix(path, "platecore/cmd/")
	}, "domain must stay implementation free")
}
