package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loginsight/internal/model"
)

func TestFingerprint_DropsStopwordsAndLowercases(t *testing.T) {
	a := fingerprint("An error occurred in the service")
	b := fingerprint("error occurred service")
	assert.Equal(t, a, b)
}

func TestFingerprint_TruncatesToMaxLen(t *testing.T) {
	long := ""
	for i := 0; i < fingerprintMaxLen; i++ {
		long += "x "
	}
	fp := fingerprint(long)
	assert.LessOrEqual(t, len(fp), fingerprintMaxLen)
}

func TestJaccard_IdenticalFingerprintsScoreOne(t *testing.T) {
	fp := fingerprint("disk usage critical on node")
	assert.Equal(t, 1.0, jaccard(fp, fp))
}

func TestJaccard_DisjointFingerprintsScoreZero(t *testing.T) {
	a := fingerprint("disk usage critical")
	b := fingerprint("network latency spike")
	assert.Equal(t, 0.0, jaccard(a, b))
}

func TestJaccard_BothEmptyScoresOne(t *testing.T) {
	assert.Equal(t, 1.0, jaccard("", ""))
}

func TestRankBySeverity_OrdersMostSevereFirstAndIsStable(t *testing.T) {
	in := []model.EmittedFinding{
		{Text: "a", Severity: "low"},
		{Text: "b", Severity: "critical"},
		{Text: "c", Severity: "medium"},
		{Text: "d", Severity: "critical"},
	}
	out := rankBySeverity(in)

	assert.Equal(t, "b", out[0].Text)
	assert.Equal(t, "d", out[1].Text, "stable sort keeps equal-severity findings in input order")
	assert.Equal(t, "c", out[2].Text)
	assert.Equal(t, "a", out[3].Text)
}

func TestRankBySeverity_UnknownSeveritySortsLast(t *testing.T) {
	in := []model.EmittedFinding{
		{Text: "weird", Severity: "unknown-level"},
		{Text: "known", Severity: "info"},
	}
	out := rankBySeverity(in)
	assert.Equal(t, "known", out[0].Text)
	assert.Equal(t, "weird", out[1].Text)
}

func TestFindByFingerprint_MatchesOnFingerprintField(t *testing.T) {
	open := []model.Finding{
		{ID: "f1", Fingerprint: "disk usage high"},
		{ID: "f2", Fingerprint: "network latency"},
	}
	found, ok := findByFingerprint(open, "network latency")
	assert.True(t, ok)
	assert.Equal(t, "f2", found.ID)

	_, ok = findByFingerprint(open, "no match")
	assert.False(t, ok)
}

func TestMostSimilar_RequiresThresholdAndPicksBestScore(t *testing.T) {
	open := []model.Finding{
		{ID: "f1", Fingerprint: "disk usage high on node one"},
		{ID: "f2", Fingerprint: "disk usage high on node two"},
	}
	match, ok := mostSimilar(open, "disk usage high on node three", 0.5)
	assert.True(t, ok)
	assert.Contains(t, []string{"f1", "f2"}, match.ID)

	_, ok = mostSimilar(open, "completely unrelated text here", 0.5)
	assert.False(t, ok)
}

func TestUnionKeyEventIDs_DedupsAndCaps(t *testing.T) {
	out := unionKeyEventIDs([]string{"e1", "e2"}, []string{"e2", "e3"}, 10)
	assert.ElementsMatch(t, []string{"e1", "e2", "e3"}, out)

	capped := unionKeyEventIDs([]string{"e1", "e2", "e3"}, nil, 2)
	assert.Len(t, capped, 2)
}
