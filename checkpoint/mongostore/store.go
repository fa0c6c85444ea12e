// Package mongostore adapts checkpoint.Store to a MongoDB-backed client.
package mongostore

import (
	"context"
	"errors"

	clientsmongo "goa.design/ccos/checkpoint/mongostore/clients/mongo"

	"goa.design/ccos/checkpoint"
)

// Store implements checkpoint.Store against a Mongo client.
type Store struct {
	client clientsmongo.Client
}

// Options configures a Store.
type Options struct {
	Client clientsmongo.Client
}

// NewStore constructs a Store from an already-built Mongo client.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: opts.Client}, nil
}

// Save persists rec.
func (s *Store) Save(ctx context.Context, rec checkpoint.Record) error {
	return s.client.Upsert(ctx, rec)
}

// Load returns the record for checkpointID.
func (s *Store) Load(ctx context.Context, checkpointID string) (checkpoint.Record, bool, error) {
	return s.client.FindByID(ctx, checkpointID)
}

// ByPlanIntent returns the most recent record for (planID, intentID).
func (s *Store) ByPlanIntent(ctx context.Context, planID, intentID string) (checkpoint.Record, bool, error) {
	return s.client.FindLatestByPlanIntent(ctx, planID, intentID)
}

// WithMissingCapability returns every record blocked on capabilityID.
func (s *Store) WithMissingCapability(ctx context.Context, capabilityID string) ([]checkpoint.Record, error) {
	return s.client.FindByMissingCapability(ctx, capabilityID)
}

var _ checkpoint.Store = (*Store)(nil)
