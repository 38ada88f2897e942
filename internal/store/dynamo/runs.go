package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/autometric/autometric/internal/lifecycle"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// InsertRun writes a run in one transaction: truth item, repository list
// copy, pickup-queue item, and (for push runs) a commit-dedup guard whose
// conditional put enforces at most one run per (repository, commit).
func (s *Store) InsertRun(ctx context.Context, run types.AnalyzerRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	items := []ddbtypes.TransactWriteItem{
		{
			Put: &ddbtypes.Put{
				TableName:           &s.tableName,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
				Item: map[string]ddbtypes.AttributeValue{
					"PK":     &ddbtypes.AttributeValueMemberS{Value: runPK(run.RunID)},
					"SK":     &ddbtypes.AttributeValueMemberS{Value: skTruth},
					"status": &ddbtypes.AttributeValueMemberS{Value: string(run.Status)},
					"data":   &ddbtypes.AttributeValueMemberS{Value: string(data)},
				},
			},
		},
		{
			Put: &ddbtypes.Put{
				TableName: &s.tableName,
				Item: map[string]ddbtypes.AttributeValue{
					"PK":   &ddbtypes.AttributeValueMemberS{Value: repoIDPK(run.RepositoryID)},
					"SK":   &ddbtypes.AttributeValueMemberS{Value: runListSK(run.CreatedAt, run.RunID)},
					"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
				},
			},
		},
		{
			Put: &ddbtypes.Put{
				TableName: &s.tableName,
				Item: map[string]ddbtypes.AttributeValue{
					"PK":    &ddbtypes.AttributeValueMemberS{Value: queuePK(string(run.TriggerKind))},
					"SK":    &ddbtypes.AttributeValueMemberS{Value: queueSK(run.CreatedAt, run.RunID)},
					"runId": &ddbtypes.AttributeValueMemberS{Value: run.RunID},
				},
			},
		},
	}
	if run.CommitSHA != "" {
		items = append(items, ddbtypes.TransactWriteItem{
			Put: &ddbtypes.Put{
				TableName:           &s.tableName,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
				Item: map[string]ddbtypes.AttributeValue{
					"PK":    &ddbtypes.AttributeValueMemberS{Value: runCommitPK(run.RepositoryID, run.CommitSHA)},
					"SK":    &ddbtypes.AttributeValueMemberS{Value: skTruth},
					"runId": &ddbtypes.AttributeValueMemberS{Value: run.RunID},
				},
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if isConditionFailure(err) {
		return store.ErrDuplicate
	}
	return err
}

// GetRun retrieves a run from its truth item (strongly consistent).
func (s *Store) GetRun(ctx context.Context, runID string) (*types.AnalyzerRun, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skTruth},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	return unmarshalRun(out.Item)
}

// FindRunByCommit resolves the commit-dedup guard to a run id, then loads it.
func (s *Store) FindRunByCommit(ctx context.Context, repositoryID, commitSHA string) (*types.AnalyzerRun, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runCommitPK(repositoryID, commitSHA)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skTruth},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	runID, err := attributeStr(out.Item, "runId")
	if err != nil {
		return nil, err
	}
	return s.GetRun(ctx, runID)
}

// OldestQueuedRun walks the pickup queue in SK order. Queue items whose run
// has already left QUEUED are stale; they are removed and skipped.
func (s *Store) OldestQueuedRun(ctx context.Context, trigger types.TriggerKind) (*types.AnalyzerRun, error) {
	var startKey map[string]ddbtypes.AttributeValue
	for page := 0; page < 10; page++ {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: queuePK(string(trigger))},
			},
			Limit:             aws.Int32(25),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			runID, err := attributeStr(item, "runId")
			if err != nil {
				continue
			}
			run, err := s.GetRun(ctx, runID)
			if err == store.ErrNotFound {
				s.removeQueueItem(ctx, item)
				continue
			}
			if err != nil {
				return nil, err
			}
			if run.Status != types.RunQueued {
				s.removeQueueItem(ctx, item)
				continue
			}
			return run, nil
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return nil, store.ErrNotFound
}

func (s *Store) removeQueueItem(ctx context.Context, item map[string]ddbtypes.AttributeValue) {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": item["PK"],
			"SK": item["SK"],
		},
	})
	if err != nil {
		s.logger.Warn("failed to remove stale queue item", "error", err)
	}
}

// ClaimRun transitions a run between statuses with a conditional update on
// the truth item; the repository list copy is rewritten in the same
// transaction. Returns false when the run was not in the expected status.
func (s *Store) ClaimRun(ctx context.Context, runID string, from, to types.RunStatus, summary map[string]interface{}) (bool, error) {
	if err := lifecycle.Transition(from, to); err != nil {
		return false, err
	}
	run, err := s.GetRun(ctx, runID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if run.Status != from {
		return false, nil
	}

	updated := *run
	updated.Status = to
	updated.UpdatedAt = time.Now().UTC()
	if summary != nil {
		updated.Summary = summary
	}
	data, err := json.Marshal(updated)
	if err != nil {
		return false, err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Update: &ddbtypes.Update{
					TableName:           &s.tableName,
					ConditionExpression: aws.String("#st = :from"),
					UpdateExpression:    aws.String("SET #st = :to, #data = :data"),
					ExpressionAttributeNames: map[string]string{
						"#st":   "status",
						"#data": "data",
					},
					ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
						":from": &ddbtypes.AttributeValueMemberS{Value: string(from)},
						":to":   &ddbtypes.AttributeValueMemberS{Value: string(to)},
						":data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					},
					Key: map[string]ddbtypes.AttributeValue{
						"PK": &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
						"SK": &ddbtypes.AttributeValueMemberS{Value: skTruth},
					},
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &s.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: repoIDPK(run.RepositoryID)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: runListSK(run.CreatedAt, run.RunID)},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					},
				},
			},
		},
	})
	if isConditionFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Leaving QUEUED makes the queue item stale; removal is best effort
	// since OldestQueuedRun skips stale items anyway.
	if from == types.RunQueued {
		_, delErr := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &s.tableName,
			Key: map[string]ddbtypes.AttributeValue{
				"PK": &ddbtypes.AttributeValueMemberS{Value: queuePK(string(run.TriggerKind))},
				"SK": &ddbtypes.AttributeValueMemberS{Value: queueSK(run.CreatedAt, run.RunID)},
			},
		})
		if delErr != nil {
			s.logger.Warn("failed to remove queue item after claim", "runId", runID, "error", delErr)
		}
	}
	return true, nil
}

// ListRuns returns recent runs for a repository, most recent first, from the
// repository's list-copy partition.
func (s *Store) ListRuns(ctx context.Context, repositoryID string, limit int) ([]types.AnalyzerRun, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: repoIDPK(repositoryID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRun},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	runs := make([]types.AnalyzerRun, 0, len(out.Items))
	for _, item := range out.Items {
		run, err := unmarshalRun(item)
		if err != nil {
			s.logger.Warn("skipping corrupt run data", "error", err)
			continue
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func unmarshalRun(item map[string]ddbtypes.AttributeValue) (*types.AnalyzerRun, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var run types.AnalyzerRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}
