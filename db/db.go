package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	SchedulesName     = "schedules"
	PendingOrdersName = "pending_orders"
	ProductsName      = "products"
	IdempotencyName   = "idempotency"
)

// Store holds the client and the collections the service uses.
type Store struct {
	Client        *mongo.Client
	Schedules     *mongo.Collection
	PendingOrders *mongo.Collection
	Products      *mongo.Collection
	Idempotency   *mongo.Collection
}

// Connect dials MongoDB, pings it and resolves the collections.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	clientOptions := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	d := client.Database(dbName)
	log.Printf("Connected to MongoDB database %q", dbName)
	return &Store{
		Client:        client,
		Schedules:     d.Collection(SchedulesName),
		PendingOrders: d.Collection(PendingOrdersName),
		Products:      d.Collection(ProductsName),
		Idempotency:   d.Collection(IdempotencyName),
	}, nil
}

// EnsureIndexes creates the indexes the atomic schedule writes and the
// commitment aggregation rely on. It is safe to run on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.Schedules: {
			{
				Keys:    bson.D{{Key: "date", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_date"),
			},
		},
		s.PendingOrders: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
				Options: options.Index().SetName("status_expires"),
			},
			{
				Keys:    bson.D{{Key: "items.productId", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("product_status"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "slotReleasedAt", Value: 1}},
				Options: options.Index().SetName("status_slot_released"),
			},
		},
		s.Idempotency: {
			{
				Keys:    bson.D{{Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_key"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at"),
			},
		},
	}
	for coll, idxs := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, idxs); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
