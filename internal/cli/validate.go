package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/rules"
)

// ValidationError is one problem found in a rule set.
type ValidationError struct {
	Code    string `json:"code"`
	RuleID  string `json:"ruleId,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Source  string            `json:"source"`
	Version string            `json:"version,omitempty"`
	Rules   int               `json:"rules"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate rule sets",
	}
	cmd.AddCommand(NewValidateCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	return cmd
}

// NewValidateCommand creates the rules validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rule-set-file]",
		Short: "Validate a rule set without running it",
		Long: `Validate a rule set file without touching the store.

Performs the schema checks (rule and action types, priorities, version)
and the semantic checks (field paths, action parameters, guards) that run
at startup, and reports every problem found. Without an argument the
configured rule set is validated, or the built-in defaults when none is
configured.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return formatter.Fail("validate rules", err)
	}
	if path == "" {
		path = cfg.Rules.Path
	}
	source := path
	if source == "" {
		source = "built-in defaults"
	}
	formatter.VerboseLog("Validating %s", source)

	result := ValidationResult{Valid: true, Source: source}
	rs, err := loadRuleSet(path, cfg.Scheduler.PendingAlertAfter)
	if err != nil {
		result.Valid = false
		result.Errors = []ValidationError{{Code: ErrCodeRules, Message: err.Error()}}
		return outputValidationErrors(formatter, result)
	}
	result.Version = rs.Version
	result.Rules = len(rs.Rules)

	if _, err := rules.New(rs); err != nil {
		result.Valid = false
		result.Errors = validationErrors(err)
		return outputValidationErrors(formatter, result)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s: %d rule(s), version %s\n", source, result.Rules, result.Version)
	return nil
}

// validationErrors flattens the joined errors returned by rules.New.
func validationErrors(err error) []ValidationError {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		ve := ValidationError{Code: ErrCodeRules, Message: e.Error()}
		var de *domain.Error
		if errors.As(e, &de) {
			ve.Code = string(de.Code)
			ve.RuleID = de.Details["rule_id"]
			ve.Message = de.Message
		}
		out = append(out, ve)
	}
	return out
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "✗ %s: validation failed\n", result.Source)
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

type ruleListView []domain.Rule

func (v ruleListView) String() string {
	var b strings.Builder
	for i, r := range v {
		if i > 0 {
			b.WriteByte('\n')
		}
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "%2d  %-28s %-22s %-8s", r.Priority, r.ID, r.Type, state)
		if r.Cooldown > 0 {
			fmt.Fprintf(&b, " cooldown %s", r.Cooldown.Std())
		}
	}
	return b.String()
}

func newRulesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the active rules in evaluation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return f.Fail("list rules", err)
			}
			rs, err := loadRuleSet(cfg.Rules.Path, cfg.Scheduler.PendingAlertAfter)
			if err != nil {
				return f.Fail("list rules", err)
			}
			eng, err := rules.New(rs)
			if err != nil {
				return f.Fail("list rules", &LoadError{Code: ErrCodeRules, Message: "compile rule set", Err: err})
			}
			return f.Success(ruleListView(eng.Rules()))
		},
	}
}
