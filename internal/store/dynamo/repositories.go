package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// EnsureRepository upserts on the natural key using dual-write: a natural-key
// item plus an id-pointer item so lookups work both ways. Creation is guarded
// by a conditional put; a lost creation race falls back to the merge path.
func (s *Store) EnsureRepository(ctx context.Context, repo types.Repository) (types.Repository, error) {
	return s.ensureRepository(ctx, repo, true)
}

func (s *Store) ensureRepository(ctx context.Context, repo types.Repository, retry bool) (types.Repository, error) {
	existing, err := s.FindRepository(ctx, repo.Provider, repo.Owner, repo.Name)
	if err != nil && err != store.ErrNotFound {
		return types.Repository{}, err
	}

	now := time.Now().UTC()
	if existing == nil {
		repo.CreatedAt = now
		repo.UpdatedAt = now
		err := s.writeRepository(ctx, repo, true)
		if isConditionFailure(err) {
			// Another writer created the row between our read and write.
			if retry {
				return s.ensureRepository(ctx, repo, false)
			}
			return types.Repository{}, fmt.Errorf("ensure repository %s: lost creation race twice", repo.FullName())
		}
		if err != nil {
			return types.Repository{}, err
		}
		return repo, nil
	}

	// Merge non-empty supplied fields, last write wins.
	merged := *existing
	if repo.DefaultBranch != "" {
		merged.DefaultBranch = repo.DefaultBranch
	}
	if repo.InstallationID != 0 {
		merged.InstallationID = repo.InstallationID
	}
	merged.UpdatedAt = now
	if err := s.writeRepository(ctx, merged, false); err != nil {
		return types.Repository{}, err
	}
	return merged, nil
}

func (s *Store) writeRepository(ctx context.Context, repo types.Repository, mustNotExist bool) error {
	data, err := json.Marshal(repo)
	if err != nil {
		return err
	}

	naturalPut := &ddbtypes.Put{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: repoNaturalPK(repo.Provider, repo.Owner, repo.Name)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: skConfig},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	}
	if mustNotExist {
		naturalPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{Put: naturalPut},
			{
				Put: &ddbtypes.Put{
					TableName: &s.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: repoIDPK(repo.ID)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: skConfig},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					},
				},
			},
		},
	})
	return err
}

// FindRepository looks up a repository by natural key.
func (s *Store) FindRepository(ctx context.Context, provider, owner, name string) (*types.Repository, error) {
	return s.getRepositoryItem(ctx, repoNaturalPK(provider, owner, name))
}

// GetRepository looks up a repository by its durable identifier.
func (s *Store) GetRepository(ctx context.Context, id string) (*types.Repository, error) {
	return s.getRepositoryItem(ctx, repoIDPK(id))
}

func (s *Store) getRepositoryItem(ctx context.Context, pk string) (*types.Repository, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skConfig},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var repo types.Repository
	if err := json.Unmarshal([]byte(data), &repo); err != nil {
		return nil, fmt.Errorf("unmarshal repository: %w", err)
	}
	return &repo, nil
}
