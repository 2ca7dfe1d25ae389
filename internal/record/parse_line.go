package record

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var levelToken = regexp.MustCompile(`\b(ERROR|WARN|INFO|DEBUG|TRACE)\b`)

// timestampPatterns are tried in order: ISO-8601 first, then common
// "yyyy-MM-dd HH:mm:ss[.SSS]", then bare epoch milliseconds.
var timestampPatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?)`), time.RFC3339Nano},
	{regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?)`), "2006-01-02 15:04:05"},
	{regexp.MustCompile(`^(\d{13})`), ""}, // epoch millis
}

// ParseLine parses a raw file-scanner line into a Record. Parse failures
// never drop the input: on failure the record is stored with
// level="UNKNOWN", message=rawContent, and metadata["parse.error"] set.
func ParseLine(source, line string, ingestTime int64) Record {
	rec := Record{
		ID:         NewID(),
		IngestTime: ingestTime,
		Source:     source,
		RawContent: line,
		Metadata:   map[string]string{},
	}

	rest := line
	if ts, consumed, ok := extractTimestamp(line); ok {
		rec.RecordTime = &ts
		rest = strings.TrimSpace(rest[consumed:])
	}

	if m := levelToken.FindStringIndex(rest); m != nil {
		rec.Level = rest[m[0]:m[1]]
		rest = strings.TrimSpace(rest[:m[0]] + rest[m[1]:])
	} else {
		rec.Level = LevelUnknown
		rec.Metadata["parse.error"] = "no level token found"
	}

	rec.Message = strings.TrimSpace(rest)
	if rec.Message == "" {
		rec.Message = line
	}
	return rec
}

func extractTimestamp(line string) (int64, int, bool) {
	for _, p := range timestampPatterns {
		loc := p.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		matched := line[loc[2]:loc[3]]
		if p.layout == "" {
			ms, err := strconv.ParseInt(matched, 10, 64)
			if err != nil {
				continue
			}
			return ms, loc[1], true
		}
		t, err := time.Parse(p.layout, matched)
		if err != nil {
			continue
		}
		return t.UnixMilli(), loc[1], true
	}
	return 0, 0, false
}
