// Package mongo hosts the MongoDB client used by the checkpoint store.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/ccos/checkpoint"
)

const (
	defaultCollection = "checkpoints"
	defaultOpTimeout   = 5 * time.Second
)

// Client exposes Mongo-backed operations for checkpoint records.
type Client interface {
	Upsert(ctx context.Context, rec checkpoint.Record) error
	FindByID(ctx context.Context, checkpointID string) (checkpoint.Record, bool, error)
	FindLatestByPlanIntent(ctx context.Context, planID, intentID string) (checkpoint.Record, bool, error)
	FindByMissingCapability(ctx context.Context, capabilityID string) ([]checkpoint.Record, error)
}

type client struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// Options configures the Mongo checkpoint client.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	idx := mongodriver.IndexModel{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "intent_id", Value: 1}}}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &client{coll: coll, timeout: timeout}, nil
}

func (c *client) Upsert(ctx context.Context, rec checkpoint.Record) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"checkpoint_id": rec.CheckpointID}
	_, err := c.coll.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	return err
}

func (c *client) FindByID(ctx context.Context, checkpointID string) (checkpoint.Record, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var rec checkpoint.Record
	err := c.coll.FindOne(ctx, bson.M{"checkpoint_id": checkpointID}).Decode(&rec)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return checkpoint.Record{}, false, nil
	}
	if err != nil {
		return checkpoint.Record{}, false, err
	}
	return rec, true, nil
}

func (c *client) FindLatestByPlanIntent(ctx context.Context, planID, intentID string) (checkpoint.Record, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"plan_id": planID, "intent_id": intentID}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var rec checkpoint.Record
	err := c.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return checkpoint.Record{}, false, nil
	}
	if err != nil {
		return checkpoint.Record{}, false, err
	}
	return rec, true, nil
}

func (c *client) FindByMissingCapability(ctx context.Context, capabilityID string) ([]checkpoint.Record, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.coll.Find(ctx, bson.M{"missing_capabilities": capabilityID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []checkpoint.Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
