package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "matched", "updated" or "" when absent
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarizes a scenario suite run.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// Update regenerates the golden files instead of comparing them.
	Update bool
}

// FindScenarios returns the YAML files under path, or path itself when it
// is a file. filter is a glob matched against the file name without its
// extension. Files under golden/ directories are skipped.
func FindScenarios(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// RunSuite loads and runs every scenario file. A scenario passes when its
// steps and assertions match and, if it has a golden file, its trace
// matches the golden file.
func RunSuite(files []string, opts SuiteOptions) SuiteResult {
	result := SuiteResult{
		Scenarios: make([]ScenarioOutcome, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		outcome := runFile(file, opts)
		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, outcome)
	}
	return result
}

func runFile(file string, opts SuiteOptions) ScenarioOutcome {
	outcome := ScenarioOutcome{Name: filepath.Base(file), Path: file}
	fail := func(format string, args ...any) ScenarioOutcome {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf(format, args...))
		return outcome
	}

	scenario, err := LoadScenario(file)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	outcome.Name = scenario.Name

	res, err := Run(scenario)
	if err != nil {
		return fail("execution failed: %v", err)
	}
	if !res.Pass {
		outcome.Errors = res.Errors
		return outcome
	}

	if opts.Update {
		if err := UpdateGolden(file, scenario, res); err != nil {
			return fail("failed to update golden file: %v", err)
		}
		outcome.Golden = "updated"
		outcome.Pass = true
		return outcome
	}

	match, found, err := CompareGolden(file, scenario, res)
	switch {
	case err != nil:
		return fail("golden comparison failed: %v", err)
	case found && !match:
		return fail("trace does not match golden file (run with --update to regenerate)")
	case found:
		outcome.Golden = "matched"
	}
	outcome.Pass = true
	return outcome
}
