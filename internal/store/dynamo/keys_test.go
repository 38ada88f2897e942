package dynamo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRepoKeys(t *testing.T) {
	assert.Equal(t, "REPO#github#acme#shop", repoNaturalPK("github", "acme", "shop"))
	assert.Equal(t, "REPOID#01ARZ", repoIDPK("01ARZ"))
}

func TestRunKeys(t *testing.T) {
	assert.Equal(t, "RUN#01BX5", runPK("01BX5"))
	assert.Equal(t, "RUNCOMMIT#repo-1#abc123", runCommitPK("repo-1", "abc123"))
	assert.Equal(t, "QUEUE#push", queuePK("push"))
}

func TestQueueSKOrdersByCreation(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Second)

	a := queueSK(earlier, "01BX5A")
	b := queueSK(later, "01BX5B")
	assert.Less(t, a, b, "lexicographic order follows creation time")

	// Same instant falls back to run id order.
	c := queueSK(earlier, "01BX5C")
	assert.Less(t, a, c)
}

func TestRunListSK(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sk := runListSK(ts, "01BX5A")
	assert.True(t, strings.HasPrefix(sk, "RUN#2026-03-01T10:00:00Z#"))
}

func TestEventSKUnique(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := eventSK(ts)
	b := eventSK(ts)
	assert.True(t, strings.HasPrefix(a, "EVENT#"))
	assert.NotEqual(t, a, b, "same-millisecond appends never collide")

	// Millisecond component is zero-padded so ordering survives epochs.
	next := eventSK(ts.Add(time.Millisecond))
	assert.Less(t, a[:len("EVENT#")+13], next[:len("EVENT#")+13])
}

func TestEventDedupPK(t *testing.T) {
	assert.Equal(t, "EVKEY#repo-1#abc123#schema", eventDedupPK("repo-1", "abc123", "schema"))
}
