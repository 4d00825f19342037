package matcher

import (
	"testing"

	"tbtr/testutil"
)

func TestMatcherIsLeafPolicy(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PrefixImportForbidden(
		"tbtr/internal/core",
		"tbtr/internal/replace",
		"tbtr/internal/infra",
		"tbtr/internal/world",
	), "matching compares values only and must not reach the command layer or storage")
}
