package blob

import (
	"slices"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// layering lists backend trees and the only packages allowed to import them. Everything
// else goes through blob.Store or core.OpenSnapshotStore.
var layering = []struct {
	tree    string
	allowed []string
}{
	{tree: "platecore/internal/infra/blob", allowed: []string{"platecore/internal/blob"}},
	{tree: "platecore/internal/infra/persistence", allowed: []string{"platecore/internal/core"}},
}

func within(path, tree string) bool {
	return path == tree || strings.HasPrefix(path, tree+"/")
}

func TestBackendsStayBehindTheirFacades(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "platecore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		// test variants carry a suffix such as "platecore/internal/core [platecore/internal/core.test]"
		path, _, _ := strings.Cut(pkg.PkgPath, " ")
		path = strings.TrimSuffix(path, "_test")
		for _, rule := range layering {
			if within(path, rule.tree) || slices.ContainsFunc(rule.allowed, func(a string) bool { return within(path, a) }) {
				continue
			}
			for imp := range pkg.Imports {
				if within(imp, rule.tree) {
					violations = append(violations, path+" imports "+imp)
				}
			}
		}
	}
	slices.Sort(violations)
	violations = slices.Compact(violations)
	for _, v := range violations {
		t.Errorf("layering violation: %s", v)
	}
}
