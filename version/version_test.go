package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionIncludesGitCommit(t *testing.T) {
	old := GitCommit
	defer func() { GitCommit = old }()

	GitCommit = "deadbeef"
	Version = SemVer
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
	require.True(t, strings.HasSuffix(Version, "deadbeef"))
}
