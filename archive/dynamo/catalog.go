// Package dynamo implements archive.Catalog with DynamoDB conditional
// writes so that concurrent archivers of one partition cannot both commit
// the same version.
//
// Manifests are stored in the blob store. DynamoDB holds one item per
// committed version pointing at the manifest blob.
//
// Table schema:
//   - Partition key: partition (string)
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name partstore-manifests \
//	  --attribute-definitions AttributeName=partition,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=partition,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/partstore/archive"
	"github.com/hupe1980/partstore/blobstore"
)

// Client is the subset of the DynamoDB API the catalog uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Catalog implements archive.Catalog.
type Catalog struct {
	client Client
	table  string
	store  blobstore.BlobStore
}

// NewCatalog returns a catalog recording versions in table and reading
// manifests from store.
func NewCatalog(client Client, table string, store blobstore.BlobStore) *Catalog {
	return &Catalog{
		client: client,
		table:  table,
		store:  store,
	}
}

// New creates a Catalog with a client from the default AWS configuration,
// adjusted by optFns (for example config.WithRegion).
func New(ctx context.Context, table string, store blobstore.BlobStore, optFns ...func(*config.LoadOptions) error) (*Catalog, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return NewCatalog(dynamodb.NewFromConfig(cfg), table, store), nil
}

func (c *Catalog) latest(ctx context.Context, partition string) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#p = :p"),
		ExpressionAttributeNames: map[string]string{
			"#p": "partition",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: partition},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, "", fmt.Errorf("dynamo: query %s: %w", partition, err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("dynamo: invalid version attribute")
	}
	pathAttr, ok := item["manifest_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("dynamo: invalid manifest_path attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("dynamo: parse version: %w", err)
	}
	return version, pathAttr.Value, nil
}

// Latest implements archive.Catalog.
func (c *Catalog) Latest(ctx context.Context, partition string) (*archive.Manifest, error) {
	version, path, err := c.latest(ctx, partition)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: %s", archive.ErrNoManifest, partition)
	}
	return archive.LoadManifest(ctx, c.store, path)
}

// Commit writes the manifest to a blob of its own, then claims its version
// with a conditional put. A lost race leaves an unreferenced manifest blob.
func (c *Catalog) Commit(ctx context.Context, m *archive.Manifest) error {
	current, _, err := c.latest(ctx, m.Partition)
	if err != nil {
		return err
	}
	if m.Version != current+1 {
		return fmt.Errorf("%w: version %d, latest %d", archive.ErrConcurrentModification, m.Version, current)
	}

	data, err := m.Encode()
	if err != nil {
		return err
	}
	path, err := manifestPath(m)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, path, data); err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"partition":     &types.AttributeValueMemberS{Value: m.Partition},
			"version":       &types.AttributeValueMemberN{Value: strconv.FormatUint(m.Version, 10)},
			"manifest_path": &types.AttributeValueMemberS{Value: path},
			"segments":      &types.AttributeValueMemberN{Value: strconv.Itoa(len(m.Segments))},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: version %d", archive.ErrConcurrentModification, m.Version)
		}
		return fmt.Errorf("dynamo: commit version %d: %w", m.Version, err)
	}
	return nil
}

// manifestPath names a manifest blob unique to this commit attempt, so a
// writer losing the race never overwrites the winner's manifest.
func manifestPath(m *archive.Manifest) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/ddb-manifests/%020d-%s.json", m.Partition, m.Version, hex.EncodeToString(suffix[:])), nil
}
