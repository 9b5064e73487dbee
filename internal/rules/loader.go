package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fulfil/internal/domain"
)

//go:embed ruleset.cue
var ruleSetSchema string

// SupportedVersions is the semver constraint rule set versions must meet.
const SupportedVersions = "^1"

// Format is the encoding of a rule set file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file name. JSON files are read as
// YAML.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("unsupported rule set file %s: want .yaml, .yml, .json or .cue", path)
}

// LoadFile reads and validates a rule set file.
func LoadFile(path string) (domain.RuleSet, error) {
	format, err := FormatOf(path)
	if err != nil {
		return domain.RuleSet{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("read rule set: %w", err)
	}
	return Parse(filepath.Base(path), data, format)
}

// Parse decodes a rule set and validates it against the rule set schema:
// known rule, operator and action types, priorities within 1..10, at least
// one action per rule and no unknown keys. Defaults (enabled: true, empty
// name and conditions) are filled in. The version must satisfy
// SupportedVersions.
//
// Parse checks structure only. New performs the semantic checks (field
// paths, parameter shapes, guards).
func Parse(name string, data []byte, format Format) (domain.RuleSet, error) {
	var jsonData []byte
	var err error
	switch format {
	case FormatYAML:
		jsonData, err = yamlToJSON(data)
	case FormatCUE:
		jsonData, err = cueToJSON(name, data)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("parse %s: %w", name, err)
	}

	validated, err := applySchema(name, jsonData)
	if err != nil {
		return domain.RuleSet{}, err
	}

	var rs domain.RuleSet
	if err := json.Unmarshal(validated, &rs); err != nil {
		return domain.RuleSet{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := checkVersion(rs.Version); err != nil {
		return domain.RuleSet{}, fmt.Errorf("%s: %w", name, err)
	}
	return rs, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("empty document")
	}
	return json.Marshal(doc)
}

func cueToJSON(name string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile CUE: %s", cueerrors.Details(err, nil))
	}
	return v.MarshalJSON()
}

// applySchema unifies the document with #RuleSet and returns the concrete
// result as JSON.
func applySchema(name string, jsonData []byte) ([]byte, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(ruleSetSchema, cue.Filename("ruleset.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile rule set schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#RuleSet"))

	doc := ctx.CompileBytes(jsonData, cue.Filename(name))
	if err := doc.Err(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, domain.NewInvalidRuleError(name, strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	out, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	return out, nil
}

func checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid rule set version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("rule set version %s does not satisfy %s", version, SupportedVersions)
	}
	return nil
}
