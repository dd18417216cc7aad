package packs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalhq/vorpal/internal/models"
)

const baselinePack = `
name: eu-ai-act-baseline
policies:
  - name: high-risk-autonomy-cap
    description: autonomy ceiling for high risk systems
    version: "1.0"
    match_criteria:
      risk_tier: high
    rules:
      - name: autonomy-cap
        condition: system.autonomy_level <= 3
        message: high risk systems may not exceed autonomy level 3
    default_severity: error
  - name: deployment-advisory
    enabled: false
    rules:
      - name: advise
        condition: "false"
        message: deployment review recommended
        severity: warning
`

func writePack(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadParsesPack(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "baseline.yaml", baselinePack)

	policies, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, policies, 2)

	first := policies[0]
	assert.Equal(t, "high-risk-autonomy-cap", first.Name)
	assert.Equal(t, "eu-ai-act-baseline", first.PackName)
	assert.Equal(t, "policy-pack", first.CreatedBy)
	assert.True(t, first.Enabled, "enabled defaults to true")
	assert.Equal(t, models.SeverityError, first.DefaultSeverity)
	assert.Equal(t, "high", first.MatchCriteria["risk_tier"])
	require.Len(t, first.Rules, 1)
	assert.Equal(t, "system.autonomy_level <= 3", first.Rules[0].Condition)

	second := policies[1]
	assert.False(t, second.Enabled, "explicit enabled: false is honored")
	assert.Equal(t, models.SeverityWarning, second.Rules[0].Severity)
}

func TestLoadSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "good.yaml", baselinePack)
	writePack(t, dir, "broken.yaml", "{{{ not yaml")
	writePack(t, dir, "ignored.txt", "not a pack")

	policies, err := NewLoader(dir, nil).Load()
	require.NoError(t, err, "one broken pack cannot take out the rest")
	assert.Len(t, policies, 2)
}

func TestLoadSkipsUnnamedPolicies(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "anon.yaml", `
policies:
  - description: no name at all
  - name: named
`)
	policies, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "named", policies[0].Name)
	assert.Equal(t, "anon.yaml", policies[0].PackName, "pack name falls back to the filename")
}

func TestLoadMissingDir(t *testing.T) {
	_, err := NewLoader("/no/such/dir", nil).Load()
	assert.Error(t, err)
}

type recordingSeeder struct {
	seeded []string
	fail   map[string]bool
}

func (r *recordingSeeder) SeedPolicy(_ context.Context, p *models.Policy) (*models.Policy, error) {
	if r.fail[p.Name] {
		return nil, assert.AnError
	}
	r.seeded = append(r.seeded, p.Name)
	return p, nil
}

func TestSeedUpsertsEveryPolicy(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "baseline.yaml", baselinePack)

	seeder := &recordingSeeder{}
	require.NoError(t, NewLoader(dir, nil).Seed(context.Background(), seeder))
	assert.Equal(t, []string{"high-risk-autonomy-cap", "deployment-advisory"}, seeder.seeded)
}

func TestSeedContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "baseline.yaml", baselinePack)

	seeder := &recordingSeeder{fail: map[string]bool{"high-risk-autonomy-cap": true}}
	require.NoError(t, NewLoader(dir, nil).Seed(context.Background(), seeder))
	assert.Equal(t, []string{"deployment-advisory"}, seeder.seeded)
}
