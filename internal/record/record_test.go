package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_ISO8601AndLevel(t *testing.T) {
	rec := ParseLine("/var/log/app.log", "2021-07-01T00:00:00Z ERROR alpha failure", 1000)

	require.NotNil(t, rec.RecordTime)
	assert.Equal(t, int64(1625097600000), *rec.RecordTime)
	assert.Equal(t, "ERROR", rec.Level)
	assert.Equal(t, "alpha failure", rec.Message)
	assert.Empty(t, rec.Metadata["parse.error"])
}

func TestParseLine_NoLevelKeepsRaw(t *testing.T) {
	rec := ParseLine("/var/log/app.log", "just a plain line", 1000)

	assert.Equal(t, LevelUnknown, rec.Level)
	assert.Equal(t, "just a plain line", rec.Message)
	assert.Equal(t, "no level token found", rec.Metadata["parse.error"])
}

func TestParseRFC5424(t *testing.T) {
	frame := `<34>1 2021-07-01T00:00:00Z myhost myapp 1234 ID47 - alpha ERROR`
	rec := ParseRFC5424("syslog:tcp:514", frame, 2000)

	require.NotNil(t, rec.RecordTime)
	assert.Equal(t, int64(1625097600000), *rec.RecordTime)
	assert.Equal(t, LevelError, rec.Level)
	assert.Equal(t, "myhost", rec.Metadata["host"])
	assert.Equal(t, "myapp", rec.Metadata["app"])
	assert.Equal(t, "1234", rec.Metadata["procid"])
	assert.Equal(t, "alpha ERROR", rec.Message)
}

func TestParseRFC3164(t *testing.T) {
	frame := `<13>Jul  1 00:00:00 myhost myapp: beta INFO`
	rec := ParseRFC3164("syslog:udp:514", frame, 2000)

	require.NotNil(t, rec.RecordTime)
	assert.Equal(t, "myhost", rec.Metadata["host"])
	assert.Equal(t, "myapp", rec.Metadata["tag"])
	assert.Equal(t, "beta INFO", rec.Message)
}

func TestParseHTTPJSON_Defaults(t *testing.T) {
	body := []byte(`{"message":"alpha ERROR"}`)
	rec := ParseHTTPJSON("http:src1", body, 3000)

	assert.Equal(t, LevelInfo, rec.Level)
	assert.Equal(t, "alpha ERROR", rec.Message)
	assert.Nil(t, rec.RecordTime)
}

func TestParseHTTPJSON_WithTimestampAndMetadata(t *testing.T) {
	body := []byte(`{"message":"beta INFO","timestamp":1625097660000,"level":"warn","metadata":{"env":"prod"}}`)
	rec := ParseHTTPJSON("http:src1", body, 3000)

	require.NotNil(t, rec.RecordTime)
	assert.Equal(t, int64(1625097660000), *rec.RecordTime)
	assert.Equal(t, "WARN", rec.Level)
	assert.Equal(t, "prod", rec.Metadata["env"])
}

func TestParseHTTPJSON_InvalidJSONNeverDrops(t *testing.T) {
	rec := ParseHTTPJSON("http:src1", []byte(`not json`), 3000)

	assert.Equal(t, LevelUnknown, rec.Level)
	assert.Equal(t, "not json", rec.Message)
	assert.NotEmpty(t, rec.Metadata["parse.error"])
}

func TestParseHTTPJSONBatch(t *testing.T) {
	body := []byte(`[{"message":"a"},{"message":"b"}]`)
	recs := ParseHTTPJSONBatch("http:src1", body, 4000)

	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Message)
	assert.Equal(t, "b", recs[1].Message)
}

func TestEffectiveTime_FallsBackToIngest(t *testing.T) {
	rec := Record{IngestTime: 42}
	assert.Equal(t, int64(42), rec.EffectiveTime())

	rt := int64(10)
	rec.RecordTime = &rt
	assert.Equal(t, int64(10), rec.EffectiveTime())
}
