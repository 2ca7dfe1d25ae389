package record

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseHTTPJSON parses the body of a single-record HTTP intake request:
// {"message": "...", "timestamp": 123, "level": "...", "metadata": {...}, "rawContent": "..."}.
// Missing "level" defaults to INFO; missing "timestamp" leaves RecordTime nil
// so the index falls back to IngestTime.
func ParseHTTPJSON(source string, body []byte, ingestTime int64) Record {
	rec := Record{
		ID:         NewID(),
		IngestTime: ingestTime,
		Source:     source,
		Metadata:   map[string]string{},
	}

	if !gjson.ValidBytes(body) {
		rec.Level = LevelUnknown
		rec.Message = string(body)
		rec.RawContent = string(body)
		rec.Metadata["parse.error"] = "invalid JSON payload"
		return rec
	}

	parsed := gjson.ParseBytes(body)

	rec.Message = parsed.Get("message").String()

	if raw := parsed.Get("rawContent"); raw.Exists() {
		rec.RawContent = raw.String()
	} else {
		rec.RawContent = string(body)
	}

	if lvl := parsed.Get("level"); lvl.Exists() && strings.TrimSpace(lvl.String()) != "" {
		rec.Level = strings.ToUpper(strings.TrimSpace(lvl.String()))
	} else {
		rec.Level = LevelInfo
	}

	if ts := parsed.Get("timestamp"); ts.Exists() {
		ms := ts.Int()
		rec.RecordTime = &ms
	}

	if meta := parsed.Get("metadata"); meta.Exists() && meta.IsObject() {
		meta.ForEach(func(key, value gjson.Result) bool {
			rec.Metadata[key.String()] = value.String()
			return true
		})
	}

	if rec.Message == "" {
		rec.Message = rec.RawContent
		if rec.Message == "" {
			rec.Metadata["parse.error"] = "missing message field"
		}
	}

	return rec
}

// ParseHTTPJSONBatch parses a JSON array of single-record payloads.
func ParseHTTPJSONBatch(source string, body []byte, ingestTime int64) []Record {
	if !gjson.ValidBytes(body) {
		return []Record{ParseHTTPJSON(source, body, ingestTime)}
	}
	arr := gjson.ParseBytes(body)
	if !arr.IsArray() {
		return []Record{ParseHTTPJSON(source, body, ingestTime)}
	}
	var records []Record
	arr.ForEach(func(_, item gjson.Result) bool {
		records = append(records, ParseHTTPJSON(source, []byte(item.Raw), ingestTime))
		return true
	})
	return records
}
