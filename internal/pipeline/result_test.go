package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultJob_JSON(t *testing.T) {
	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		in := ResultJob{
			ID:       "r1",
			SourceID: "src1",
			Platform: PlatformWeb,
			Outcome: Fetched{
				Posts:      []FetchedPost{{ExternalID: "abc123", Content: "hello", MediaURLs: []string{}, PublishedAt: published}},
				NextCursor: "abc123",
			},
			ProcessingTime: 1500 * time.Millisecond,
			Metadata:       ResultMetadata{CollectorJobID: "c1", OrchestratorJobID: "o1"},
		}

		b, err := json.Marshal(in)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"status":"success"`)
		assert.Contains(t, string(b), `"processing_ms":1500`)
		assert.NotContains(t, string(b), `"error"`)

		var out ResultJob
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, StatusSuccess, out.Status())
		fetched, ok := out.Outcome.(Fetched)
		require.True(t, ok)
		require.Len(t, fetched.Posts, 1)
		assert.Equal(t, "abc123", fetched.Posts[0].ExternalID)
		assert.Equal(t, "hello", fetched.Posts[0].Content)
		assert.True(t, published.Equal(fetched.Posts[0].PublishedAt))
	})

	t.Run("Partial", func(t *testing.T) {
		b, err := json.Marshal(ResultJob{ID: "r", SourceID: "s", Outcome: Fetched{Partial: true}, Metadata: ResultMetadata{CollectorJobID: "c"}})
		require.NoError(t, err)

		var out ResultJob
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, StatusPartial, out.Status())
	})

	t.Run("Error", func(t *testing.T) {
		b, err := json.Marshal(ResultJob{
			ID: "r", SourceID: "s",
			Outcome:  Failure{Code: "NOT_FOUND", Message: "account suspended"},
			Metadata: ResultMetadata{CollectorJobID: "c"},
		})
		require.NoError(t, err)

		var out ResultJob
		require.NoError(t, json.Unmarshal(b, &out))
		f, ok := out.Outcome.(Failure)
		require.True(t, ok)
		assert.Equal(t, "account suspended", f.Message)
		assert.False(t, f.Retryable)
	})

	t.Run("MissingOutcome", func(t *testing.T) {
		_, err := json.Marshal(ResultJob{ID: "r", SourceID: "s"})
		assert.ErrorIs(t, err, ErrMalformedResult)
	})
}

func TestResultJob_RejectsIllegalStates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"ErrorOnSuccess", `{"id":"r","source_id":"s","status":"success","error":{"code":"X"},"metadata":{"collector_job_id":"c"}}`},
		{"PostsOnError", `{"id":"r","source_id":"s","status":"error","error":{"code":"X"},"posts":[{"external_id":"a"}],"metadata":{"collector_job_id":"c"}}`},
		{"CursorOnError", `{"id":"r","source_id":"s","status":"error","error":{"code":"X"},"next_cursor":"a","metadata":{"collector_job_id":"c"}}`},
		{"ErrorWithoutPayload", `{"id":"r","source_id":"s","status":"error","metadata":{"collector_job_id":"c"}}`},
		{"ErrorWithoutCode", `{"id":"r","source_id":"s","status":"error","error":{"message":"m"},"metadata":{"collector_job_id":"c"}}`},
		{"UnknownStatus", `{"id":"r","source_id":"s","status":"maybe","metadata":{"collector_job_id":"c"}}`},
		{"MissingSource", `{"id":"r","status":"success","metadata":{"collector_job_id":"c"}}`},
		{"MissingCollectorJob", `{"id":"r","source_id":"s","status":"success"}`},
		{"PostWithoutExternalID", `{"id":"r","source_id":"s","status":"success","posts":[{"content":"x"}],"metadata":{"collector_job_id":"c"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out ResultJob
			err := Decode([]byte(tt.body), &out)
			assert.ErrorIs(t, err, ErrMalformedResult)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		var j OrchestratorJob
		assert.Error(t, Decode(nil, &j))
	})

	t.Run("UnknownFieldsIgnored", func(t *testing.T) {
		var j OrchestratorJob
		err := Decode([]byte(`{"id":"o","source_id":"s","scheduled_by":"user","future_field":1}`), &j)
		assert.NoError(t, err)
		assert.Equal(t, ScheduledByUser, j.ScheduledBy)
	})

	t.Run("InvalidScheduledBy", func(t *testing.T) {
		var j OrchestratorJob
		assert.Error(t, Decode([]byte(`{"id":"o","source_id":"s","scheduled_by":"robot"}`), &j))
	})

	t.Run("CollectorJobRequiresOrchestratorID", func(t *testing.T) {
		var j CollectorJob
		err := Decode([]byte(`{"id":"c","source_id":"s","platform":"web","collector_type":"rss","external_id":"e","url":"u","metadata":{}}`), &j)
		assert.Error(t, err)
	})
}

func TestParseCollectorType(t *testing.T) {
	for _, ct := range CollectorTypes {
		got, err := ParseCollectorType(string(ct))
		assert.NoError(t, err)
		assert.Equal(t, ct, got)
	}
	_, err := ParseCollectorType("fax")
	assert.ErrorIs(t, err, ErrUnknownCollectorType)
}
