package dynamo

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// PK/SK prefix constants.
const (
	prefixRepo      = "REPO#"
	prefixRepoID    = "REPOID#"
	prefixRun       = "RUN#"
	prefixRunCommit = "RUNCOMMIT#"
	prefixQueue     = "QUEUE#"
	prefixEvent     = "EVENT#"
	prefixEventKey  = "EVKEY#"

	skConfig = "CONFIG"
	skTruth  = "TRUTH"
)

func repoNaturalPK(provider, owner, name string) string {
	return prefixRepo + provider + "#" + owner + "#" + name
}

func repoIDPK(id string) string { return prefixRepoID + id }
func runPK(runID string) string { return prefixRun + runID }

func runCommitPK(repositoryID, sha string) string {
	return prefixRunCommit + repositoryID + "#" + sha
}

func queuePK(trigger string) string { return prefixQueue + trigger }

func queueSK(createdAt time.Time, runID string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "#" + runID
}

func runListSK(createdAt time.Time, runID string) string {
	return prefixRun + createdAt.UTC().Format(time.RFC3339Nano) + "#" + runID
}

// eventSK sorts events by millisecond timestamp with a random suffix so
// same-millisecond appends never collide.
func eventSK(ts time.Time) string {
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixEvent, ts.UnixMilli(), hex.EncodeToString(nonce))
}

// eventDedupPK is the idempotency key item for governance event writes.
func eventDedupPK(repositoryID, sha, verb string) string {
	return prefixEventKey + repositoryID + "#" + sha + "#" + verb
}
