// Package watch provides hot reload of the user-editable routing rules
// file. It wraps fsnotify with debouncing so editors that write in several
// bursts trigger a single reload.
package watch

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/flowtonehq/flowtone/internal/domain/routing"
)

// rulesFile is the on-disk shape of the routing rules file.
type rulesFile struct {
	Rules []*routing.Rule `yaml:"rules"`
}

// LoadRulesFile reads and validates a routing rules YAML file. Rules
// without an ID get one assigned, so hand-written files stay terse.
func LoadRulesFile(path string) (*routing.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("could not parse rules file: %w", err)
	}

	for _, rule := range file.Rules {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
	}

	set := routing.NewSet(file.Rules)
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("rules file invalid: %w", err)
	}
	return set, nil
}

// SaveRulesFile writes the rule set back to disk in evaluation order.
func SaveRulesFile(path string, set *routing.Set) error {
	data, err := yaml.Marshal(rulesFile{Rules: set.Rules()})
	if err != nil {
		return fmt.Errorf("could not marshal rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write rules file: %w", err)
	}
	return nil
}
