package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScoreResponse_AssignsMissingEventIDsInOrder(t *testing.T) {
	raw := `Here is the result:
[
  {"scores": {"security": 0.9}, "severity_label": "high", "reason_codes": ["auth_failure"]},
  {"event_id": "evt-2", "scores": {"security": 0.1}, "severity_label": "low"}
]
trailing prose the model wasn't asked for`

	vectors, err := ParseScoreResponse(raw, []string{"evt-1", "evt-2"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, "evt-1", vectors[0].EventID, "a missing event_id falls back to the positional input id")
	require.Equal(t, "evt-2", vectors[1].EventID, "an explicit event_id in the response is preserved")
	require.Equal(t, 0.9, vectors[0].Scores["security"])
}

func TestParseScoreResponse_CountMismatchIsAnError(t *testing.T) {
	raw := `[{"scores": {"security": 0.5}}]`
	_, err := ParseScoreResponse(raw, []string{"evt-1", "evt-2"})
	require.Error(t, err)
}

func TestParseMetaResponse_StampsWindowID(t *testing.T) {
	raw := `some preface text {"summary": "elevated auth failures", "recommended_action": "rotate credentials"} trailer`

	mr, err := ParseMetaResponse(raw, "window-123")
	require.NoError(t, err)
	require.Equal(t, "window-123", mr.WindowID)
	require.Equal(t, "elevated auth failures", mr.Summary)
}

func TestExtractJSON_NoDelimitersReturnsInputUnchanged(t *testing.T) {
	raw := "no braces here at all"
	require.Equal(t, raw, extractJSON(raw, '{', '}'))
}
