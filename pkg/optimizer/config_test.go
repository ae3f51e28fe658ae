package optimizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optimizer.yaml")
	content := `
budget:
  branching_estimate: 4
  safety_factor: 1.5
rewrite:
  default_max_vector_results: 10
importance:
  normalization: 50
execution:
  seed_concurrency: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Budget.BranchingEstimate)
	assert.Equal(t, 1.5, cfg.Budget.SafetyFactor)
	assert.Equal(t, 10, cfg.Rewrite.DefaultMaxVectorResults)
	assert.Equal(t, 50.0, cfg.Importance.Normalization)
	assert.Equal(t, 2, cfg.Execution.SeedConcurrency)

	// Untouched keys keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Budget.MaxTimeMs, cfg.Budget.MaxTimeMs)
	assert.Equal(t, def.Importance.InboundWeight, cfg.Importance.InboundWeight)
	assert.True(t, cfg.Execution.ScoreSeeds)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseConfigRejects(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown key", "budget:\n  branchng_estimate: 3\n", "YAML syntax error"},
		{"syntax", "budget: [\n", "YAML syntax error"},
		{"zero safety factor", "budget:\n  safety_factor: 0\n", "SafetyFactor"},
		{"alpha above one", "stats:\n  selectivity_alpha: 1.5\n", "SelectivityAlpha"},
		{"defaults above maximum", "rewrite:\n  default_max_traversal_depth: 20\n", "MaxTraversalDepth"},
		{"unbounded concurrency", "execution:\n  seed_concurrency: 0\n", "SeedConcurrency"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Importance.Normalization = 0
	_, err := New(GraphInfo{}, WithConfig(cfg))
	assert.ErrorContains(t, err, "Normalization")
}
