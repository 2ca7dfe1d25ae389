package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

var statsRe = regexp.MustCompile(`^(\w+)\(([^)]*)\)(?:\s+by\s+(.+))?$`)

func applyStats(state Result, stage Stage) (Result, error) {
	m := statsRe.FindStringSubmatch(strings.TrimSpace(stage.Arg))
	if m == nil {
		return state, errors.InvalidInput("stats", "expected '<agg>(field?) [by field,...]'")
	}
	agg := strings.ToLower(m[1])
	field := strings.TrimSpace(m[2])
	var byFields []string
	if m[3] != "" {
		for _, f := range strings.Split(m[3], ",") {
			byFields = append(byFields, strings.TrimSpace(f))
		}
	}

	var rows []Row
	switch state.Type {
	case ResultLogEntries:
		for _, r := range state.Records {
			rows = append(rows, recordRow(r))
		}
	case ResultStatistics:
		rows = state.Rows
	}

	groups := make(map[string][]Row)
	var groupOrder []string
	for _, row := range rows {
		key := groupKey(row, byFields)
		if _, ok := groups[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], row)
	}
	if len(groups) == 0 {
		groups[""] = nil
		groupOrder = []string{""}
	}

	aggCol := agg
	if field != "" {
		aggCol = agg + "(" + field + ")"
	}

	columns := append(append([]string{}, byFields...), aggCol)
	var outRows []Row

	for _, key := range groupOrder {
		group := groups[key]
		out := Row{}
		parts := strings.Split(key, "\x1f")
		for i, bf := range byFields {
			if i < len(parts) {
				out[bf] = parts[i]
			}
		}
		out[aggCol] = computeAgg(agg, field, group)
		outRows = append(outRows, out)
	}

	return Result{Type: ResultStatistics, Columns: columns, Rows: outRows}, nil
}

func groupKey(row Row, byFields []string) string {
	if len(byFields) == 0 {
		return ""
	}
	parts := make([]string, len(byFields))
	for i, f := range byFields {
		parts[i] = toDisplayString(row[f])
	}
	return strings.Join(parts, "\x1f")
}

func toDisplayString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return ""
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func computeAgg(agg, field string, rows []Row) interface{} {
	switch agg {
	case "count":
		return int64(len(rows))
	case "distinct_count":
		seen := make(map[string]struct{})
		for _, r := range rows {
			seen[toDisplayString(r[field])] = struct{}{}
		}
		return int64(len(seen))
	case "sum", "avg", "min", "max":
		var sum float64
		var count int
		var min, max float64
		first := true
		for _, r := range rows {
			f, ok := toFloat(r[field])
			if !ok {
				continue
			}
			sum += f
			count++
			if first || f < min {
				min = f
			}
			if first || f > max {
				max = f
			}
			first = false
		}
		switch agg {
		case "sum":
			return sum
		case "avg":
			if count == 0 {
				return 0.0
			}
			return sum / float64(count)
		case "min":
			return min
		case "max":
			return max
		}
	}
	return nil
}

func applySort(state Result, stage Stage) (Result, error) {
	parts := strings.Fields(stage.Arg)
	if len(parts) == 0 {
		return state, errors.InvalidInput("sort", "expected a field name")
	}
	field := parts[0]
	desc := len(parts) > 1 && strings.EqualFold(parts[1], "desc")

	switch state.Type {
	case ResultLogEntries:
		type indexed struct {
			row   Row
			index int
		}
		indices := make([]indexed, len(state.Records))
		for i, r := range state.Records {
			indices[i] = indexed{row: recordRow(r), index: i}
		}
		sort.SliceStable(indices, func(i, j int) bool {
			return compareValues(indices[i].row[field], indices[j].row[field], desc)
		})
		sorted := make([]record.Record, len(state.Records))
		for i, ix := range indices {
			sorted[i] = state.Records[ix.index]
		}
		state.Records = sorted
	case ResultStatistics:
		rows := append([]Row{}, state.Rows...)
		sort.SliceStable(rows, func(i, j int) bool {
			return compareValues(rows[i][field], rows[j][field], desc)
		})
		state.Rows = rows
	}
	return state, nil
}

func compareValues(a, b interface{}, desc bool) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	var less bool
	if aok && bok {
		less = af < bf
	} else {
		less = toDisplayString(a) < toDisplayString(b)
	}
	if desc {
		return !less
	}
	return less
}

func applyHead(state Result, stage Stage) (Result, error) {
	n, err := parseCount(stage.Arg)
	if err != nil {
		return state, err
	}
	switch state.Type {
	case ResultLogEntries:
		if n < len(state.Records) {
			state.Records = state.Records[:n]
		}
	case ResultStatistics:
		if n < len(state.Rows) {
			state.Rows = state.Rows[:n]
		}
	}
	return state, nil
}

func applyTail(state Result, stage Stage) (Result, error) {
	n, err := parseCount(stage.Arg)
	if err != nil {
		return state, err
	}
	switch state.Type {
	case ResultLogEntries:
		if n < len(state.Records) {
			state.Records = state.Records[len(state.Records)-n:]
		}
	case ResultStatistics:
		if n < len(state.Rows) {
			state.Rows = state.Rows[len(state.Rows)-n:]
		}
	}
	return state, nil
}

func parseCount(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 0 {
		return 0, errors.InvalidInput("head/tail", "expected a non-negative integer")
	}
	return n, nil
}
