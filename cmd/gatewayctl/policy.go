package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/byteness/sentinel-gateway/config"
)

var (
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// PolicyValidateCommandInput contains the input for policy validate.
type PolicyValidateCommandInput struct {
	Paths  []string
	Output string // human, json

	Stdout *os.File
	Stderr *os.File
}

// policyCmd holds the policy command reference so validate and template
// can each register a subcommand under it.
var policyCmd *kingpin.CmdClause

func getPolicyCmd(app *kingpin.Application) *kingpin.CmdClause {
	if policyCmd == nil {
		policyCmd = app.Command("policy", "Policy file management")
	}
	return policyCmd
}

// ConfigurePolicyValidateCommand sets up the policy validate command.
func ConfigurePolicyValidateCommand(app *kingpin.Application) {
	input := PolicyValidateCommandInput{}

	cmd := getPolicyCmd(app).Command("validate", "Validate policy TOML or Settings YAML files")

	cmd.Arg("paths", "Files to validate").Required().StringsVar(&input.Paths)

	cmd.Flag("output", "Output format: human (default), json").
		Default("human").
		EnumVar(&input.Output, "human", "json")

	cmd.Action(func(c *kingpin.ParseContext) error {
		exitCode, err := PolicyValidateCommand(input)
		app.FatalIfError(err, "validate")
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	})
}

// PolicyValidateCommand validates every path and reports all issues found.
// It returns exit code 1 if any file is invalid.
func PolicyValidateCommand(input PolicyValidateCommandInput) (int, error) {
	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var results []config.ValidationResult
	for _, path := range input.Paths {
		result, err := config.ValidateFile(path, "")
		if err != nil && result.Source == "" {
			result = config.ValidationResult{
				Source: path,
				Valid:  false,
				Issues: []config.ValidationIssue{{
					Severity: config.SeverityError,
					Message:  fmt.Sprintf("failed to read file: %v", err),
				}},
			}
		}
		results = append(results, result)
	}

	var summary config.ResultSummary
	summary.Compute(results)
	all := config.AllResults{Results: results, Summary: summary}

	if input.Output == "json" {
		outputPolicyJSON(stdout, all)
	} else {
		outputPolicyHuman(stdout, all)
	}

	if summary.Errors > 0 {
		return 1, nil
	}
	return 0, nil
}

func outputPolicyHuman(w *os.File, all config.AllResults) {
	if len(all.Results) == 0 {
		fmt.Fprintln(w, "No files to validate.")
		return
	}

	for _, result := range all.Results {
		typeStr := ""
		if result.ConfigType != "" {
			typeStr = fmt.Sprintf(" (%s)", result.ConfigType)
		}

		if result.Valid {
			fmt.Fprintf(w, "%s %s%s\n", okStyle.Render("OK "), result.Source, typeStr)
		} else {
			fmt.Fprintf(w, "%s %s%s\n", errStyle.Render("ERR"), result.Source, typeStr)
		}

		for _, issue := range result.Issues {
			location := ""
			if issue.Location != "" {
				location = issue.Location + ": "
			}
			fmt.Fprintf(w, "  [%s] %s%s\n", issue.Severity, location, issue.Message)
			if issue.Suggestion != "" {
				fmt.Fprintf(w, "    -> %s\n", issue.Suggestion)
			}
		}
	}

	fmt.Fprintf(w, "\n%d valid, %d invalid (%d errors, %d warnings)\n",
		all.Summary.Valid, all.Summary.Invalid, all.Summary.Errors, all.Summary.Warnings)
}

func outputPolicyJSON(w *os.File, all config.AllResults) {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		fmt.Fprintf(w, `{"error": %q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(w, string(data))
}

// PolicyTemplateCommandInput contains the input for policy template.
type PolicyTemplateCommandInput struct {
	Template string
	Commands []string
	Output   string // file path, empty means stdout

	Stdout *os.File
}

// ConfigurePolicyTemplateCommand sets up the policy template command.
func ConfigurePolicyTemplateCommand(app *kingpin.Application) {
	input := PolicyTemplateCommandInput{}

	cmd := getPolicyCmd(app).Command("template", "Generate a starter policy TOML file")

	cmd.Flag("template", "Template: basic, enforced, strict").
		Short('t').
		Required().
		EnumVar(&input.Template, "basic", "enforced", "strict")

	cmd.Flag("command", "Command to allow (repeatable, required for enforced/strict)").
		Short('c').
		StringsVar(&input.Commands)

	cmd.Flag("output", "File to write (omit for stdout)").
		Short('o').
		StringVar(&input.Output)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := PolicyTemplateCommand(input)
		app.FatalIfError(err, "template")
		return nil
	})
}

// PolicyTemplateCommand renders the requested template and writes it to
// input.Output, or stdout when Output is empty.
func PolicyTemplateCommand(input PolicyTemplateCommandInput) error {
	out, err := config.GenerateTemplate(config.TemplateID(input.Template), input.Commands)
	if err != nil {
		return err
	}

	if input.Output == "" {
		stdout := input.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		_, err := fmt.Fprint(stdout, out)
		return err
	}
	return os.WriteFile(input.Output, []byte(out), 0600)
}
