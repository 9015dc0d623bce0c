package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"bulkhaul/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// upsertRetries bounds retries of the first-booking race on a new date,
// where two upserts both try to create the document.
const upsertRetries = 3

// MongoStore keeps one document per date in the schedules collection.
// Requires the unique date index created by db.EnsureIndexes.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func slotKey(slotID string) string {
	return "slots." + slotID
}

func (s *MongoStore) Day(ctx context.Context, date string) (models.DaySchedule, error) {
	var day models.DaySchedule
	err := s.coll.FindOne(ctx, bson.M{"date": date}).Decode(&day)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.DaySchedule{Date: date, Slots: map[string][]models.Booking{}}, nil
	}
	if err != nil {
		return models.DaySchedule{}, fmt.Errorf("cannot load schedule %s: %w", date, err)
	}
	if day.Slots == nil {
		day.Slots = map[string][]models.Booking{}
	}
	return day, nil
}

// Append pushes b only if index capacity-1 of the slot array does not exist
// yet and no element carries b.OrderID. Both conditions live in the filter,
// so the check and the push are one document update.
func (s *MongoStore) Append(ctx context.Context, date, slotID string, capacity int, b models.Booking) (models.DaySchedule, error) {
	key := slotKey(slotID)
	filter := bson.M{
		"date": date,
		key + "." + strconv.Itoa(capacity-1): bson.M{"$exists": false},
		key + ".orderId":                     bson.M{"$ne": b.OrderID},
	}
	update := bson.M{
		"$push":        bson.M{key: b},
		"$set":         bson.M{"updatedAt": b.ReservedAt},
		"$setOnInsert": bson.M{"createdAt": b.ReservedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	for attempt := 0; attempt < upsertRetries; attempt++ {
		var day models.DaySchedule
		err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&day)
		if err == nil {
			return day, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return models.DaySchedule{}, fmt.Errorf("cannot reserve %s/%s: %w", date, slotID, err)
		}

		// The date document exists and the filter rejected it, or a concurrent
		// upsert created it first. Re-read to find out which.
		current, err := s.Day(ctx, date)
		if err != nil {
			return models.DaySchedule{}, err
		}
		list := current.Slots[slotID]
		if slices.ContainsFunc(list, func(x models.Booking) bool { return x.OrderID == b.OrderID }) {
			return models.DaySchedule{}, fmt.Errorf("%w: order %s in %s/%s", ErrDuplicateBooking, b.OrderID, date, slotID)
		}
		if len(list) >= capacity {
			return models.DaySchedule{}, fmt.Errorf("%w: %s/%s holds %d of %d", ErrSlotFull, date, slotID, len(list), capacity)
		}
	}
	return models.DaySchedule{}, fmt.Errorf("cannot reserve %s/%s: too much contention", date, slotID)
}

func (s *MongoStore) Pull(ctx context.Context, date, slotID, orderID string, now time.Time) (bool, error) {
	key := slotKey(slotID)
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"date": date, key + ".orderId": orderID},
		bson.M{
			"$pull": bson.M{key: bson.M{"orderId": orderID}},
			"$set":  bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return false, fmt.Errorf("cannot release %s from %s/%s: %w", orderID, date, slotID, err)
	}
	return res.ModifiedCount > 0, nil
}

// Patch sets only the given fields on the matching booking, addressed
// through an array filter rather than by position.
func (s *MongoStore) Patch(ctx context.Context, date, slotID, orderID string, patch models.BookingPatch, now time.Time) (models.Booking, error) {
	key := slotKey(slotID)
	elem := key + ".$[b]."
	set := bson.M{
		elem + "updatedAt": now,
		"updatedAt":        now,
	}
	if patch.AssignedTruckID != nil {
		set[elem+"assignedTruckId"] = *patch.AssignedTruckID
	}
	if patch.AssignedDriverID != nil {
		set[elem+"assignedDriverId"] = *patch.AssignedDriverID
	}
	if patch.Status != nil {
		set[elem+"status"] = *patch.Status
	}
	if patch.Notes != nil {
		set[elem+"notes"] = *patch.Notes
	}

	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{Filters: []any{bson.M{"b.orderId": orderID}}}).
		SetReturnDocument(options.After)

	var day models.DaySchedule
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"date": date, key + ".orderId": orderID},
		bson.M{"$set": set},
		opts,
	).Decode(&day)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Booking{}, fmt.Errorf("%w: order %s in %s/%s", ErrBookingNotFound, orderID, date, slotID)
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("cannot update %s in %s/%s: %w", orderID, date, slotID, err)
	}

	for _, b := range day.Slots[slotID] {
		if b.OrderID == orderID {
			return b, nil
		}
	}
	return models.Booking{}, fmt.Errorf("%w: order %s in %s/%s", ErrBookingNotFound, orderID, date, slotID)
}
