// Command resultsummary interprets a saved query result offline: it reads
// the rows the execution layer returned, classifies the columns and prints
// the chart pairing with its Top-N split.
//
//	resultsummary --input result.json --sql-file query.sql --policy-file policy.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/choibumgyu/HYU-CDW/internal/adapter/policy"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/render"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/resultfile"
	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/service"
)

type options struct {
	input      string
	sql        string
	sqlFile    string
	policyFile string
	topN       int
	rows       int
	jsonOut    bool
	verbose    bool
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("resultsummary", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&o.input, "input", "-", "result JSON file ({\"data\": [...]} or [...]); - reads stdin")
	fs.StringVar(&o.sql, "sql", "", "SQL that produced the result")
	fs.StringVar(&o.sqlFile, "sql-file", "", "file holding the SQL that produced the result")
	fs.StringVar(&o.policyFile, "policy-file", "", "policy YAML with rules, display names and masks")
	fs.IntVar(&o.topN, "top-n", 10, "entries in the Top-N split")
	fs.IntVar(&o.rows, "rows", 0, "also print the first N (masked) rows")
	fs.BoolVar(&o.jsonOut, "json", false, "print the report as JSON")
	fs.BoolVar(&o.verbose, "v", false, "debug logging on stderr")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.sql != "" && o.sqlFile != "" {
		return options{}, errors.New("--sql and --sql-file are mutually exclusive")
	}
	if o.topN <= 0 {
		return options{}, errors.New("invalid --top-n value: must be a positive integer")
	}
	if o.rows < 0 {
		return options{}, errors.New("invalid --rows value: must not be negative")
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	sql := o.sql
	if o.sqlFile != "" {
		data, err := os.ReadFile(o.sqlFile)
		if err != nil {
			return fmt.Errorf("reading sql file: %w", err)
		}
		sql = string(data)
	}

	var pol *policy.Policy
	if o.policyFile != "" {
		pol, err = policy.LoadFromFile(o.policyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
	}
	rules, err := pol.ExtendRules(domain.DefaultRules())
	if err != nil {
		return fmt.Errorf("applying policy rules: %w", err)
	}

	rs, err := readResult(o.input, stdin)
	if err != nil {
		return err
	}
	logger.Debug("result loaded", slog.Int("rows", rs.Len()), slog.Int("columns", len(rs.Columns)))

	var masks map[string]domain.MaskType
	if pol != nil {
		masks = policy.MaskSpec(pol.Context)
	}
	aliases := domain.BuildAliasMap(sql)
	domain.MaskRows(rs, domain.MergeMasks(
		domain.ResolveMasks(rs, aliases, masks),
		domain.SensitiveColumnMasks(rs, aliases, rules),
	))

	names := pol.Names()
	analysis := service.NewAnalysisService(domain.NewEngine(rules),
		domain.InterpretOptions{TopN: o.topN, DisplayNames: names}, logger, nil, nil)
	report := analysis.Interpret(context.Background(), rs, sql)

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		return nil
	}

	if formatted := domain.FormatSQLForDisplay(sql); formatted != "" {
		fmt.Fprintf(stdout, "%s\n\n", formatted)
	}
	if o.rows > 0 {
		fmt.Fprintf(stdout, "%s\n\n", render.Rows(rs, names, o.rows))
	}
	return render.Report(stdout, report)
}

func readResult(input string, stdin io.Reader) (*domain.ResultSet, error) {
	if input == "" || input == "-" {
		rs, err := resultfile.Decode(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading result from stdin: %w", err)
		}
		return rs, nil
	}
	return resultfile.LoadFile(input)
}
