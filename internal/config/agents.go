package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/autarch-dev/autarch/pkg/types"
)

// ValidationError is a path-qualified agent-config failure.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Path, e.Message)
}

func missing(path string) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("Missing required property: %s", path)}
}

// AgentFile is one loaded and validated agent definition.
type AgentFile struct {
	ID       int
	FileName string
	Config   types.AgentConfig
}

// ParseAgentConfig decodes and validates one agent definition. Unknown
// properties are rejected.
func ParseAgentConfig(data []byte) (*types.AgentConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg types.AgentConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	if err := ValidateAgentConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateAgentConfig enforces the agent definition schema.
func ValidateAgentConfig(cfg *types.AgentConfig) error {
	if cfg.Name == "" {
		return missing("name")
	}
	if cfg.Strategy == "" {
		return missing("strategy")
	}
	if cfg.IntervalMs != 0 && cfg.IntervalMs < types.MinIntervalMs {
		return &ValidationError{Path: "intervalMs", Message: fmt.Sprintf("must be at least %d", types.MinIntervalMs)}
	}
	if len(cfg.Rules) == 0 {
		return missing("rules")
	}
	for i, rule := range cfg.Rules {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(i int, rule types.Rule) error {
	path := func(field string) string { return fmt.Sprintf("rules[%d].%s", i, field) }

	if rule.Name == "" {
		return missing(path("name"))
	}
	if rule.Action == "" {
		return missing(path("action"))
	}
	if !oneOfAction(rule.Action) {
		return &ValidationError{Path: path("action"), Message: fmt.Sprintf("must be one of: %s", joinActions())}
	}
	if rule.Amount <= 0 {
		return &ValidationError{Path: path("amount"), Message: "must be greater than 0"}
	}
	if rule.Weight < 0 || rule.Weight > 100 {
		return &ValidationError{Path: path("weight"), Message: "must be between 0 and 100"}
	}
	if rule.CooldownSeconds < 0 {
		return &ValidationError{Path: path("cooldownSeconds"), Message: "must be at least 0"}
	}
	if len(rule.Conditions) == 0 {
		return missing(path("conditions"))
	}
	for j, cond := range rule.Conditions {
		if err := validateCondition(i, j, cond); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(i, j int, cond types.Condition) error {
	path := func(field string) string { return fmt.Sprintf("rules[%d].conditions[%d].%s", i, j, field) }

	if cond.Field == "" {
		return missing(path("field"))
	}
	if cond.Operator == "" {
		return missing(path("operator"))
	}
	if !oneOfOperator(cond.Operator) {
		return &ValidationError{Path: path("operator"), Message: fmt.Sprintf("must be one of: %s", joinOperators())}
	}
	switch cond.Threshold.(type) {
	case float64, string:
	case nil:
		return missing(path("threshold"))
	default:
		return &ValidationError{Path: path("threshold"), Message: "must be a number or a string"}
	}
	switch cond.Logic {
	case "", types.LogicAnd, types.LogicOr, types.LogicNot:
	default:
		return &ValidationError{Path: path("logic"), Message: "must be one of: AND, OR, NOT"}
	}
	return nil
}

// LoadAgentsDir loads every *.json agent definition in dir, assigning
// ids 1..N in filename order.
func LoadAgentsDir(dir string) ([]AgentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading agents directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no agent definitions found in %s", dir)
	}

	out := make([]AgentFile, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		cfg, err := ParseAgentConfig(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, AgentFile{ID: i + 1, FileName: name, Config: *cfg})
	}
	return out, nil
}

func oneOfAction(a types.ActionType) bool {
	for _, v := range types.Actions {
		if a == v {
			return true
		}
	}
	return false
}

func oneOfOperator(op types.Operator) bool {
	for _, v := range types.Operators {
		if op == v {
			return true
		}
	}
	return false
}

func joinActions() string {
	parts := make([]string, len(types.Actions))
	for i, a := range types.Actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

func joinOperators() string {
	parts := make([]string, len(types.Operators))
	for i, op := range types.Operators {
		parts[i] = string(op)
	}
	return strings.Join(parts, ", ")
}
