// Package query implements the pipelined query language ("SPL-like"):
// search | where | eval | stats | sort | head | tail. The where/eval stages
// compile boolean and arithmetic expressions with github.com/PaesslerAG/gval
// over a flat map of each record's fields plus its metadata keys (recordRow);
// there is no dotted or nested metadata lookup.
package query

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// ResultType tags whether a pipeline's final result is a log record list or
// an aggregated statistics table.
type ResultType string

const (
	ResultLogEntries ResultType = "LOG_ENTRIES"
	ResultStatistics ResultType = "STATISTICS"
)

// Row is one tuple of a STATISTICS result.
type Row map[string]interface{}

// Result is the tagged output of executing a pipeline.
type Result struct {
	Type    ResultType
	Records []record.Record
	Columns []string
	Rows    []Row
}

// RowErrorFunc is invoked once per row that fails where/eval evaluation; the
// row is skipped and the caller (the REST SPL handler) counts it in
// query.row.errors.
type RowErrorFunc func(stage string, err error)

var spplLang = gval.Full(
	gval.Function("contains", func(a, b string) bool { return strings.Contains(a, b) }),
	gval.Function("matches", func(a, pattern string) bool {
		ok, _ := regexp.MatchString(pattern, a)
		return ok
	}),
	gval.Function("len", func(a string) int { return len(a) }),
	gval.Function("lower", strings.ToLower),
	gval.Function("upper", strings.ToUpper),
)

var comparisonRewrite = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(\S+)\s+contains\s+(.+)`), `contains($1, $2)`},
	{regexp.MustCompile(`(\S+)\s+matches\s+(.+)`), `matches($1, $2)`},
}

// rewriteOperators turns the spec's `field contains literal` / `field
// matches literal` infix forms into gval function-call syntax, and
// normalizes bare `=` (the spec's equality operator) into gval's `==`
// without disturbing `==`, `!=`, `<=`, `>=`.
func rewriteOperators(expr string) string {
	expr = normalizeEquals(expr)
	for _, r := range comparisonRewrite {
		if r.re.MatchString(expr) {
			return r.re.ReplaceAllString(expr, r.repl)
		}
	}
	return expr
}

var multiCharComparisons = []string{"==", "!=", "<=", ">="}

func normalizeEquals(expr string) string {
	placeholders := make(map[string]string, len(multiCharComparisons))
	out := expr
	for i, op := range multiCharComparisons {
		ph := string(rune(0xE000+i)) // private-use-area rune, won't appear in input
		placeholders[ph] = op
		out = strings.ReplaceAll(out, op, ph)
	}
	out = strings.ReplaceAll(out, "=", "==")
	for ph, op := range placeholders {
		out = strings.ReplaceAll(out, ph, op)
	}
	return out
}

// Execute parses and runs pipeline against idx over [start,end), invoking
// onRowError for every row that fails where/eval evaluation.
func Execute(ctx context.Context, idx *index.Engine, pipeline string, start, end int64, onRowError RowErrorFunc) (Result, error) {
	stages, err := Parse(pipeline)
	if err != nil {
		return Result{}, err
	}

	var state Result
	if len(stages) == 0 || stages[0].Kind != stageSearch {
		records, serr := idx.Search("*", false, start, end)
		if serr != nil {
			return Result{}, serr
		}
		state = Result{Type: ResultLogEntries, Records: records}
	} else {
		s := stages[0]
		records, serr := idx.Search(s.Arg, s.IsRegex, start, end)
		if serr != nil {
			return Result{}, serr
		}
		state = Result{Type: ResultLogEntries, Records: records}
		stages = stages[1:]
	}

	for _, stage := range stages {
		var err error
		state, err = apply(state, stage, onRowError)
		if err != nil {
			return Result{}, err
		}
	}
	return state, nil
}

func apply(state Result, stage Stage, onRowError RowErrorFunc) (Result, error) {
	switch stage.Kind {
	case stageWhere:
		return applyWhere(state, stage, onRowError)
	case stageEval:
		return applyEval(state, stage, onRowError)
	case stageStats:
		return applyStats(state, stage)
	case stageSort:
		return applySort(state, stage)
	case stageHead:
		return applyHead(state, stage)
	case stageTail:
		return applyTail(state, stage)
	default:
		return state, errors.InvalidInput("pipeline", "unsupported stage: "+string(stage.Kind))
	}
}

func recordRow(r record.Record) Row {
	row := Row{
		"id":         r.ID,
		"ingestTime": r.IngestTime,
		"level":      r.Level,
		"message":    r.Message,
		"source":     r.Source,
		"rawContent": r.RawContent,
	}
	row["recordTime"] = r.EffectiveTime()
	for k, v := range r.Metadata {
		if _, exists := row[k]; !exists {
			row[k] = v
		}
	}
	return row
}

func applyWhere(state Result, stage Stage, onRowError RowErrorFunc) (Result, error) {
	expr := rewriteOperators(stage.Arg)
	eval, err := spplLang.NewEvaluable(expr)
	if err != nil {
		return state, errors.InvalidInput("where", "invalid expression: "+err.Error())
	}

	switch state.Type {
	case ResultLogEntries:
		var kept []record.Record
		for _, r := range state.Records {
			v, err := eval(context.Background(), recordRow(r))
			if err != nil {
				if onRowError != nil {
					onRowError("where", err)
				}
				continue
			}
			if b, ok := v.(bool); ok && b {
				kept = append(kept, r)
			}
		}
		state.Records = kept
	case ResultStatistics:
		var kept []Row
		for _, row := range state.Rows {
			v, err := eval(context.Background(), map[string]interface{}(row))
			if err != nil {
				if onRowError != nil {
					onRowError("where", err)
				}
				continue
			}
			if b, ok := v.(bool); ok && b {
				kept = append(kept, row)
			}
		}
		state.Rows = kept
	}
	return state, nil
}

func applyEval(state Result, stage Stage, onRowError RowErrorFunc) (Result, error) {
	name, expr, ok := strings.Cut(stage.Arg, "=")
	if !ok {
		return state, errors.InvalidInput("eval", "expected 'name = expr'")
	}
	name = strings.TrimSpace(name)
	expr = rewriteOperators(strings.TrimSpace(expr))

	eval, err := spplLang.NewEvaluable(expr)
	if err != nil {
		return state, errors.InvalidInput("eval", "invalid expression: "+err.Error())
	}

	switch state.Type {
	case ResultLogEntries:
		out := make([]record.Record, 0, len(state.Records))
		for _, r := range state.Records {
			v, err := eval(context.Background(), recordRow(r))
			if err != nil {
				if onRowError != nil {
					onRowError("eval", err)
				}
				continue
			}
			c := r.Clone()
			if c.Metadata == nil {
				c.Metadata = map[string]string{}
			}
			c.Metadata[name] = toString(v)
			out = append(out, c)
		}
		state.Records = out
	case ResultStatistics:
		out := make([]Row, 0, len(state.Rows))
		for _, row := range state.Rows {
			v, err := eval(context.Background(), map[string]interface{}(row))
			if err != nil {
				if onRowError != nil {
					onRowError("eval", err)
				}
				continue
			}
			row2 := make(Row, len(row)+1)
			for k, val := range row {
				row2[k] = val
			}
			row2[name] = v
			out = append(out, row2)
			if !containsString(state.Columns, name) {
				state.Columns = append(state.Columns, name)
			}
		}
		state.Rows = out
	}
	return state, nil
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
