package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var (
	// ErrConcurrentModification is returned when another writer committed the same version first.
	ErrConcurrentModification = errors.New("concurrent modification detected")
	// ErrNoVersion is returned when an index has no committed snapshot.
	ErrNoVersion = errors.New("no committed snapshot")
)

// Version is one committed snapshot of a named index.
type Version struct {
	Index    string
	Number   uint64
	Snapshot string
	RunID    string
}

// Catalog records which snapshot is current for each named index.
//
// Table schema:
//   - Partition key: index (string)
//   - Sort key: version (number), monotonically increasing
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name annbench-snapshots \
//	  --attribute-definitions AttributeName=index,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=index,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Catalog struct {
	client    DDBClient
	tableName string
}

// NewCatalog creates a catalog over the given table.
func NewCatalog(client DDBClient, tableName string) *Catalog {
	return &Catalog{client: client, tableName: tableName}
}

// NewCatalogFromEnv builds a DynamoDB client from the default AWS credential chain.
func NewCatalogFromEnv(ctx context.Context, tableName string) (*Catalog, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(dynamodb.NewFromConfig(cfg), tableName), nil
}

// Latest returns the newest committed version of index.
func (c *Catalog) Latest(ctx context.Context, index string) (*Version, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("#idx = :idx"),
		ExpressionAttributeNames: map[string]string{
			"#idx": "index",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":idx": &types.AttributeValueMemberS{Value: index},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVersion, index)
	}
	return decodeVersion(resp.Items[0])
}

// Commit records snapshot as the next version of index. Two writers racing for
// the same version number get ErrConcurrentModification for the loser.
func (c *Catalog) Commit(ctx context.Context, index, snapshot, runID string) (*Version, error) {
	var next uint64 = 1
	latest, err := c.Latest(ctx, index)
	switch {
	case err == nil:
		next = latest.Number + 1
	case !errors.Is(err, ErrNoVersion):
		return nil, err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"index":    &types.AttributeValueMemberS{Value: index},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"snapshot": &types.AttributeValueMemberS{Value: snapshot},
			"run_id":   &types.AttributeValueMemberS{Value: runID},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("commit version: %w", err)
	}

	return &Version{Index: index, Number: next, Snapshot: snapshot, RunID: runID}, nil
}

func decodeVersion(item map[string]types.AttributeValue) (*Version, error) {
	idx, ok := item["index"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("invalid index attribute in catalog")
	}
	num, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return nil, errors.New("invalid version attribute in catalog")
	}
	snap, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("invalid snapshot attribute in catalog")
	}
	n, err := strconv.ParseUint(num.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse version: %w", err)
	}
	v := &Version{Index: idx.Value, Number: n, Snapshot: snap.Value}
	if run, ok := item["run_id"].(*types.AttributeValueMemberS); ok {
		v.RunID = run.Value
	}
	return v, nil
}
