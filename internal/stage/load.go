package stage

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk shape of a stage table override.
type tableFile struct {
	Default  string            `yaml:"default"`
	Allowed  []string          `yaml:"allowed"`
	Synonyms map[string]string `yaml:"synonyms"`
	// Replace drops the built-in synonyms instead of merging onto them.
	Replace bool `yaml:"replace_synonyms"`
}

// LoadTable reads a YAML stage table. Missing fields fall back to the
// built-in vocabulary; synonyms are merged onto the built-ins unless
// replace_synonyms is set. def, when non-empty, overrides the file default.
// The allowed list may narrow All but never extend it, since the deals
// table rejects anything else.
func LoadTable(path, def string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stage: read table %s", path)
	}
	return ParseTable(data, def)
}

// ParseTable is LoadTable over an in-memory document.
func ParseTable(data []byte, def string) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "stage: parse table")
	}

	allowed := f.Allowed
	if len(allowed) == 0 {
		allowed = All
	}
	for _, a := range allowed {
		if !slices.Contains(All, a) {
			return nil, eris.Errorf("stage: allowed value %q is not a deal_stage value", a)
		}
	}

	synonyms := make(map[string]string, len(defaultSynonyms)+len(f.Synonyms))
	if !f.Replace {
		for k, v := range defaultSynonyms {
			synonyms[k] = v
		}
	}
	for k, v := range f.Synonyms {
		synonyms[k] = v
	}

	if def == "" {
		def = f.Default
	}
	if def == "" {
		def = NotContacted
	}

	t, err := NewTable(allowed, synonyms, def)
	if err != nil {
		return nil, err
	}
	for k, v := range synonyms {
		if !t.IsAllowed(v) {
			zap.L().Warn("stage: synonym maps to a value outside the allowed set",
				zap.String("synonym", k), zap.String("target", v))
		}
	}
	return t, nil
}
