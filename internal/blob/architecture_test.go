package blob

import (
	"testing"

	"resourcesync/testutil"
)

func TestBlobCoreStaysDriverFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, "core", testutil.DriverImportForbidden, "blob core is the shared contract")
}
