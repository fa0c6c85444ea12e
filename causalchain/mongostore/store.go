// Package mongostore adapts causalchain.Sink to a MongoDB-backed client,
// giving the causal chain an optional durable backend in addition to its
// always-present in-memory copy.
package mongostore

import (
	"context"
	"errors"

	clientsmongo "goa.design/ccos/causalchain/mongostore/clients/mongo"

	"goa.design/ccos/causalchain"
)

// Store implements causalchain.Sink against a Mongo client.
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

// NewStoreFromMongo builds the Mongo client from connection options and
// wraps it in a Store.
func NewStoreFromMongo(mongoOpts clientsmongo.Options) (*Store, error) {
	if mongoOpts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	client, err := clientsmongo.New(mongoOpts)
	if err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

// Append persists a single action.
func (s *Store) Append(ctx context.Context, action causalchain.Action) error {
	return s.client.InsertAction(ctx, action)
}

// ActionsForPlan returns every persisted action for a plan.
func (s *Store) ActionsForPlan(ctx context.Context, planID string) ([]causalchain.Action, error) {
	return s.client.ActionsForPlan(ctx, planID)
}

var _ causalchain.Sink = (*Store)(nil)
