package integration

import (
	"testing"

	"grampscore/testutil"
)

// TestPackageLayering keeps the domain package free of implementation code
// and keeps consumers of the core API off the concrete drivers.
func TestPackageLayering(t *testing.T) {
	testutil.AssertNoDirectImports(t, "../../pkg/domain",
		testutil.Any(testutil.InternalImport, testutil.ThirdPartyImport),
		"pkg/domain is the shared contract")
	for _, dir := range []string{"../check", "../genealogy", "../proxy", "../../cmd/grampscheck"} {
		testutil.AssertNoDirectImports(t, dir, testutil.InfraImport,
			"storage and media are reached through core and blob")
	}
}
