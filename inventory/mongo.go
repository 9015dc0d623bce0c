package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bulkhaul/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOrderStore keeps pending orders in their own collection. Commitments
// are aggregated on every read; there is no running counter to drift.
type MongoOrderStore struct {
	coll *mongo.Collection
}

func NewMongoOrderStore(coll *mongo.Collection) *MongoOrderStore {
	return &MongoOrderStore{coll: coll}
}

func (s *MongoOrderStore) Insert(ctx context.Context, o models.PendingOrder) error {
	if _, err := s.coll.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot create pending order: %w", err)
	}
	return nil
}

func (s *MongoOrderStore) Get(ctx context.Context, id string) (models.PendingOrder, error) {
	var o models.PendingOrder
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PendingOrder{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return models.PendingOrder{}, fmt.Errorf("cannot get pending order: %w", err)
	}
	return o, nil
}

// liveFilter matches orders that still hold inventory at now.
func liveFilter(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"status": bson.M{"$in": bson.A{models.StatusPaid, models.StatusConverted}}},
		bson.M{"status": models.StatusPendingPayment, "expiresAt": bson.M{"$gt": now}},
	}}
}

func (s *MongoOrderStore) CommittedTons(ctx context.Context, productIDs []string, now time.Time) (map[string]float64, error) {
	match := liveFilter(now)
	match["items.productId"] = bson.M{"$in": productIDs}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$match", Value: bson.M{"items.productId": bson.M{"$in": productIDs}}}},
		{{Key: "$group", Value: bson.M{
			"_id":  "$items.productId",
			"tons": bson.M{"$sum": "$items.tons"},
		}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("cannot aggregate commitments: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ProductID string  `bson:"_id"`
		Tons      float64 `bson:"tons"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("cannot decode commitments: %w", err)
	}

	sums := make(map[string]float64, len(rows))
	for _, r := range rows {
		sums[r.ProductID] = r.Tons
	}
	return sums, nil
}

func (s *MongoOrderStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.OrderStatus, reason string, now time.Time) (models.PendingOrder, bool, error) {
	set := bson.M{"status": to, "updatedAt": now}
	if reason != "" {
		set["cancelReason"] = reason
	}
	var o models.PendingOrder
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return models.PendingOrder{}, false, getErr
		}
		return models.PendingOrder{}, false, nil
	}
	if err != nil {
		return models.PendingOrder{}, false, fmt.Errorf("cannot update order status: %w", err)
	}
	return o, true, nil
}

func (s *MongoOrderStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.PendingOrder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{
		"status":    models.StatusPendingPayment,
		"expiresAt": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list expired orders: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.PendingOrder
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode expired orders: %w", err)
	}
	return out, nil
}

func (s *MongoOrderStore) ListUnreleased(ctx context.Context, limit int) ([]models.PendingOrder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{
		"status":         models.StatusCancelled,
		"delivery":       bson.M{"$exists": true},
		"slotReleasedAt": bson.M{"$exists": false},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list unreleased orders: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.PendingOrder
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode unreleased orders: %w", err)
	}
	return out, nil
}

func (s *MongoOrderStore) MarkSlotReleased(ctx context.Context, id string, now time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"slotReleasedAt": now}})
	if err != nil {
		return fmt.Errorf("cannot mark slot released: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return nil
}
