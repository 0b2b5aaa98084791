package pipeline

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDefinitionFile reads a Pipeline Definition from a YAML file, the
// alternate construction path SPEC_FULL.md adds alongside the
// pipeline_define command, following the declarative-YAML-config pattern
// used elsewhere in the example pack.
func LoadDefinitionFile(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return Definition{}, err
	}
	if len(def.Stages) == 0 {
		return Definition{}, ErrNoStages
	}
	return def, nil
}
