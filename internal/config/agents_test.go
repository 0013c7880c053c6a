package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/pkg/types"
)

const validAgentJSON = `{
	"name": "Alpha",
	"strategy": "dip-buyer",
	"intervalMs": 5000,
	"rules": [
		{
			"name": "buy-the-dip",
			"conditions": [
				{"field": "price_drop", "operator": ">", "threshold": 5}
			],
			"action": "buy",
			"amount": 0.1,
			"weight": 80,
			"cooldownSeconds": 60
		}
	]
}`

func TestParseValidAgentConfig(t *testing.T) {
	cfg, err := ParseAgentConfig([]byte(validAgentJSON))
	require.NoError(t, err)
	assert.Equal(t, "Alpha", cfg.Name)
	assert.Equal(t, int64(5000), cfg.IntervalMs)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, types.ActionBuy, cfg.Rules[0].Action)
	assert.Equal(t, 5.0, cfg.Rules[0].Conditions[0].Threshold)

	// Revalidating a valid config stays valid.
	assert.NoError(t, ValidateAgentConfig(cfg))
}

func TestParseRejectsUnknownProperty(t *testing.T) {
	_, err := ParseAgentConfig([]byte(`{"name": "A", "strategy": "s", "rules": [], "surprise": 1}`))
	assert.Error(t, err)
}

func TestValidationMessagesArePathQualified(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(cfg *types.AgentConfig)
		message string
	}{
		{
			name:    "missing name",
			mutate:  func(c *types.AgentConfig) { c.Name = "" },
			message: "Missing required property: name",
		},
		{
			name:    "missing strategy",
			mutate:  func(c *types.AgentConfig) { c.Strategy = "" },
			message: "Missing required property: strategy",
		},
		{
			name:    "missing action",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Action = "" },
			message: "Missing required property: rules[0].action",
		},
		{
			name:    "bad action",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Action = "hold" },
			message: "rules[0].action must be one of: buy, sell, transfer, none",
		},
		{
			name:    "bad operator",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Conditions[0].Operator = "~=" },
			message: "rules[0].conditions[0].operator must be one of: >, <, >=, <=, ==, !=",
		},
		{
			name:    "missing threshold",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Conditions[0].Threshold = nil },
			message: "Missing required property: rules[0].conditions[0].threshold",
		},
		{
			name:    "bad logic",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Conditions[0].Logic = "XOR" },
			message: "rules[0].conditions[0].logic must be one of: AND, OR, NOT",
		},
		{
			name:    "bad weight",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Weight = 120 },
			message: "rules[0].weight must be between 0 and 100",
		},
		{
			name:    "zero amount",
			mutate:  func(c *types.AgentConfig) { c.Rules[0].Amount = 0 },
			message: "rules[0].amount must be greater than 0",
		},
		{
			name:    "interval too small",
			mutate:  func(c *types.AgentConfig) { c.IntervalMs = 500 },
			message: "intervalMs must be at least 1000",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseAgentConfig([]byte(validAgentJSON))
			require.NoError(t, err)
			tc.mutate(cfg)
			err = ValidateAgentConfig(cfg)
			require.Error(t, err)
			assert.Equal(t, tc.message, err.Error())
		})
	}
}

func TestLoadAgentsDirAssignsIDsInFilenameOrder(t *testing.T) {
	dir := t.TempDir()
	second := `{
		"name": "Beta",
		"strategy": "momentum",
		"rules": [
			{
				"name": "chase",
				"conditions": [{"field": "price_rise", "operator": ">", "threshold": 3}],
				"action": "buy",
				"amount": 0.2,
				"weight": 75
			}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-beta.json"), []byte(second), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-alpha.json"), []byte(validAgentJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	agents, err := LoadAgentsDir(dir)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, 1, agents[0].ID)
	assert.Equal(t, "01-alpha.json", agents[0].FileName)
	assert.Equal(t, "Alpha", agents[0].Config.Name)
	assert.Equal(t, 2, agents[1].ID)
	assert.Equal(t, "Beta", agents[1].Config.Name)
}

func TestLoadAgentsDirReportsFileInError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"name": "X", "strategy": "s"}`), 0o644))

	_, err := LoadAgentsDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
	assert.Contains(t, err.Error(), "Missing required property: rules")
}

func TestLoadAgentsDirEmpty(t *testing.T) {
	_, err := LoadAgentsDir(t.TempDir())
	assert.ErrorContains(t, err, "no agent definitions")
}
