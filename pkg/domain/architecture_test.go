package domain

import (
	"testing"

	"familytree/testutil"
)

// The forest builder and key allocator stay free of I/O and third-party code.
func TestDomainImportsStandardLibraryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStandardImport, "domain package must only use the standard library")
}
