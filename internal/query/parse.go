package query

import (
	"fmt"
	"strings"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
)

// StageKind names one pipeline stage kind.
type StageKind string

const (
	stageSearch StageKind = "search"
	stageWhere  StageKind = "where"
	stageEval   StageKind = "eval"
	stageStats  StageKind = "stats"
	stageSort   StageKind = "sort"
	stageHead   StageKind = "head"
	stageTail   StageKind = "tail"
)

// Stage is one parsed pipeline stage.
type Stage struct {
	Kind    StageKind
	Arg     string
	IsRegex bool // search stage only
}

// Parse splits pipeline on top-level '|' (respecting double-quoted
// substrings) and classifies each segment into a Stage. The first segment,
// if it doesn't start with a recognized keyword, is treated as a bare
// `search` expression.
func Parse(pipeline string) ([]Stage, error) {
	segments := splitPipeline(pipeline)
	stages := make([]Stage, 0, len(segments))

	for i, seg := range segments {
		leading := len(seg.text) - len(strings.TrimLeft(seg.text, " \t"))
		trimmed := strings.TrimSpace(seg.text)
		if trimmed == "" {
			continue
		}
		kind, rest := firstWord(trimmed)
		switch strings.ToLower(kind) {
		case "search":
			stages = append(stages, parseSearch(rest))
		case "where":
			stages = append(stages, Stage{Kind: stageWhere, Arg: rest})
		case "eval":
			stages = append(stages, Stage{Kind: stageEval, Arg: rest})
		case "stats":
			stages = append(stages, Stage{Kind: stageStats, Arg: rest})
		case "sort":
			stages = append(stages, Stage{Kind: stageSort, Arg: rest})
		case "head":
			stages = append(stages, Stage{Kind: stageHead, Arg: rest})
		case "tail":
			stages = append(stages, Stage{Kind: stageTail, Arg: rest})
		default:
			if i == 0 {
				stages = append(stages, parseSearch(trimmed))
				continue
			}
			offset := seg.offset + leading
			return nil, errors.InvalidInput("pipeline", fmt.Sprintf("unknown stage keyword %q at byte offset %d", kind, offset))
		}
	}
	return stages, nil
}

func parseSearch(expr string) Stage {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "regex:") {
		return Stage{Kind: stageSearch, Arg: strings.TrimSpace(strings.TrimPrefix(expr, "regex:")), IsRegex: true}
	}
	return Stage{Kind: stageSearch, Arg: expr}
}

func firstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// pipelineSegment is one '|'-delimited segment of a pipeline string, along
// with the byte offset (into the original string) where it starts.
type pipelineSegment struct {
	text   string
	offset int
}

// splitPipeline splits on '|' characters that are not inside double quotes,
// tracking each segment's starting byte offset for error reporting.
func splitPipeline(s string) []pipelineSegment {
	var segments []pipelineSegment
	var b strings.Builder
	inQuotes := false
	segStart := 0
	for i, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case r == '|' && !inQuotes:
			segments = append(segments, pipelineSegment{text: b.String(), offset: segStart})
			b.Reset()
			segStart = i + 1
		default:
			b.WriteRune(r)
		}
	}
	segments = append(segments, pipelineSegment{text: b.String(), offset: segStart})
	return segments
}
