package dynamo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// AppendEvent writes an entry to the repository's event partition. For
// governance verbs with a commit sha, a conditional dedup-guard put in the
// same transaction enforces the (repository, commit, verb) idempotency key.
func (s *Store) AppendEvent(ctx context.Context, entry types.EventLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	eventPut := ddbtypes.TransactWriteItem{
		Put: &ddbtypes.Put{
			TableName: &s.tableName,
			Item: map[string]ddbtypes.AttributeValue{
				"PK":   &ddbtypes.AttributeValueMemberS{Value: repoIDPK(entry.RepositoryID)},
				"SK":   &ddbtypes.AttributeValueMemberS{Value: eventSK(entry.Timestamp)},
				"verb": &ddbtypes.AttributeValueMemberS{Value: entry.Verb},
				"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			},
		},
	}

	if store.IsGovernanceVerb(entry.Verb) && entry.CommitSHA != "" {
		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []ddbtypes.TransactWriteItem{
				{
					Put: &ddbtypes.Put{
						TableName:           &s.tableName,
						ConditionExpression: aws.String("attribute_not_exists(PK)"),
						Item: map[string]ddbtypes.AttributeValue{
							"PK": &ddbtypes.AttributeValueMemberS{Value: eventDedupPK(entry.RepositoryID, entry.CommitSHA, entry.Verb)},
							"SK": &ddbtypes.AttributeValueMemberS{Value: skTruth},
						},
					},
				},
				eventPut,
			},
		})
		if isConditionFailure(err) {
			return store.ErrDuplicate
		}
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      eventPut.Put.Item,
	})
	return err
}

// LatestEventByVerb pages newest-first through the event partition until it
// finds an entry with one of the given verbs.
func (s *Store) LatestEventByVerb(ctx context.Context, repositoryID string, verbs ...types.Verb) (*types.EventLogEntry, error) {
	if len(verbs) == 0 {
		return nil, store.ErrNotFound
	}

	exprValues := map[string]ddbtypes.AttributeValue{
		":pk":     &ddbtypes.AttributeValueMemberS{Value: repoIDPK(repositoryID)},
		":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixEvent},
	}
	filter := ""
	for i, verb := range verbs {
		name := fmt.Sprintf(":v%d", i)
		exprValues[name] = &ddbtypes.AttributeValueMemberS{Value: verb}
		if i > 0 {
			filter += ", "
		}
		filter += name
	}

	var startKey map[string]ddbtypes.AttributeValue
	for page := 0; page < 20; page++ {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 &s.tableName,
			KeyConditionExpression:    aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			FilterExpression:          aws.String("verb IN (" + filter + ")"),
			ExpressionAttributeValues: exprValues,
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(100),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}
		if len(out.Items) > 0 {
			return unmarshalEvent(out.Items[0])
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return nil, store.ErrNotFound
}

// ListEvents returns recent entries for a repository, most recent first.
func (s *Store) ListEvents(ctx context.Context, repositoryID string, limit int) ([]types.EventLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: repoIDPK(repositoryID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixEvent},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]types.EventLogEntry, 0, len(out.Items))
	for _, item := range out.Items {
		entry, err := unmarshalEvent(item)
		if err != nil {
			s.logger.Warn("skipping corrupt event data", "error", err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func unmarshalEvent(item map[string]ddbtypes.AttributeValue) (*types.EventLogEntry, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var entry types.EventLogEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &entry, nil
}
