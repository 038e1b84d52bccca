package feature

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// flagFile is the on-disk flag configuration shape:
//
//	flags:
//	  - name: new-dashboard
//	    description: gamified dashboard widgets
//	    enabled: true
//	    strategy: targeted
//	    criteria:
//	      percentage: 25
//	  - name: guest-checkout-linking
//	    enabled: true
//	    strategy: environment
//	    environments: [production, staging]
type flagFile struct {
	Flags []flagSpec `yaml:"flags"`
}

type flagSpec struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Enabled      bool           `yaml:"enabled"`
	Strategy     string         `yaml:"strategy"`
	Criteria     TargetCriteria `yaml:"criteria"`
	Environments []string       `yaml:"environments"`
	Tags         []string       `yaml:"tags"`
}

// LoadFlags parses a YAML flag file into Flag values. The extractors are
// bound into the parsed strategies so evaluation can read the request context.
func LoadFlags(path string, userID UserIDExtractor, environment EnvironmentExtractor) ([]*Flag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidFlagFile, err)
	}
	return ParseFlags(data, userID, environment)
}

// ParseFlags parses YAML flag configuration bytes.
func ParseFlags(data []byte, userID UserIDExtractor, environment EnvironmentExtractor) ([]*Flag, error) {
	var file flagFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Join(ErrInvalidFlagFile, err)
	}

	flags := make([]*Flag, 0, len(file.Flags))
	for _, spec := range file.Flags {
		if spec.Name == "" {
			return nil, errors.Join(ErrInvalidFlagFile, errors.New("flag name is required"))
		}

		flag := &Flag{
			Name:        spec.Name,
			Description: spec.Description,
			Enabled:     spec.Enabled,
			Tags:        spec.Tags,
		}

		switch spec.Strategy {
		case "", "always":
			// No strategy: the enabled bit decides on its own.
		case "targeted":
			flag.Strategy = NewTargetedStrategy(spec.Criteria, userID)
		case "environment":
			flag.Strategy = NewEnvironmentStrategy(spec.Environments, environment)
		default:
			return nil, errors.Join(ErrInvalidFlagFile,
				fmt.Errorf("unknown strategy %q for flag %q", spec.Strategy, spec.Name))
		}

		flags = append(flags, flag)
	}
	return flags, nil
}
