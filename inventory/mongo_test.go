package inventory

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"bulkhaul/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func startedCommands(mt *mtest.T, name string) []*event.CommandStartedEvent {
	var out []*event.CommandStartedEvent
	for _, e := range mt.GetAllStartedEvents() {
		if e.CommandName == name {
			out = append(out, e)
		}
	}
	return out
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func orderDoc(id string, status models.OrderStatus) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "customerId", Value: "c-1"},
		{Key: "status", Value: string(status)},
		{Key: "items", Value: bson.A{bson.D{{Key: "productId", Value: "gravel"}, {Key: "tons", Value: 12.5}}}},
	}
}

func stringValues(v bson.RawValue) []string {
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	vals, _ := arr.Values()
	out := make([]string, 0, len(vals))
	for _, x := range vals {
		if s, ok := x.StringValueOK(); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestMongoCommittedTons(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	mt.Run("aggregates live orders only", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "gravel"}, {Key: "tons", Value: 40.0}},
			bson.D{{Key: "_id", Value: "mulch"}, {Key: "tons", Value: 2.4}},
		))

		sums, err := NewMongoOrderStore(mt.Coll).CommittedTons(context.Background(), []string{"gravel", "mulch"}, now)
		if err != nil {
			mt.Fatalf("committed: %v", err)
		}
		if sums["gravel"] != 40 || sums["mulch"] != 2.4 {
			mt.Fatalf("unexpected sums %v", sums)
		}

		cmds := startedCommands(mt, "aggregate")
		if len(cmds) != 1 {
			mt.Fatalf("expected one aggregate, got %d", len(cmds))
		}
		match := cmds[0].Command.Lookup("pipeline", "0", "$match")

		held := stringValues(match.Document().Lookup("$or", "0", "status", "$in"))
		for _, s := range []models.OrderStatus{models.StatusPaid, models.StatusConverted} {
			if !slices.Contains(held, string(s)) {
				mt.Errorf("%s orders must count as committed, matched %v", s, held)
			}
		}
		if slices.Contains(held, string(models.StatusDelivered)) || slices.Contains(held, string(models.StatusCancelled)) {
			mt.Errorf("finished orders must not hold stock, matched %v", held)
		}
		if s, _ := match.Document().Lookup("$or", "1", "status").StringValueOK(); s != string(models.StatusPendingPayment) {
			mt.Errorf("expected pending branch, got %q", s)
		}
		if gt, ok := match.Document().Lookup("$or", "1", "expiresAt", "$gt").TimeOK(); !ok || !gt.Equal(now) {
			mt.Errorf("expected expiresAt > %v, got %v", now, gt)
		}
		if ids := stringValues(match.Document().Lookup("items.productId", "$in")); !slices.Equal(ids, []string{"gravel", "mulch"}) {
			mt.Errorf("unexpected product filter %v", ids)
		}
		if grp, _ := cmds[0].Command.Lookup("pipeline", "3", "$group", "tons", "$sum").StringValueOK(); grp != "$items.tons" {
			mt.Errorf("expected a sum of item tons, got %q", grp)
		}
	})

	mt.Run("no rows", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		sums, err := NewMongoOrderStore(mt.Coll).CommittedTons(context.Background(), []string{"gravel"}, now)
		if err != nil || len(sums) != 0 {
			mt.Fatalf("expected empty sums, got %v err=%v", sums, err)
		}
	})
}

func TestMongoCompareAndSetStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	mt.Run("swaps from the expected status", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: orderDoc("ord_1", models.StatusCancelled)}))

		o, ok, err := NewMongoOrderStore(mt.Coll).CompareAndSetStatus(context.Background(), "ord_1",
			models.StatusPendingPayment, models.StatusCancelled, ReasonExpired, now)
		if err != nil || !ok {
			mt.Fatalf("cas: ok=%v err=%v", ok, err)
		}
		if o.Status != models.StatusCancelled || o.TotalTons() != 12.5 {
			mt.Fatalf("unexpected order %+v", o)
		}

		cmd := startedCommands(mt, "findAndModify")[0].Command
		if id, _ := cmd.Lookup("query", "_id").StringValueOK(); id != "ord_1" {
			mt.Errorf("unexpected id %q", id)
		}
		if from, _ := cmd.Lookup("query", "status").StringValueOK(); from != string(models.StatusPendingPayment) {
			mt.Errorf("expected guard on %s, got %q", models.StatusPendingPayment, from)
		}
		if to, _ := cmd.Lookup("update", "$set", "status").StringValueOK(); to != string(models.StatusCancelled) {
			mt.Errorf("unexpected target status %q", to)
		}
		if r, _ := cmd.Lookup("update", "$set", "cancelReason").StringValueOK(); r != ReasonExpired {
			mt.Errorf("unexpected reason %q", r)
		}
		if at, ok := cmd.Lookup("update", "$set", "updatedAt").TimeOK(); !ok || !at.Equal(now) {
			mt.Errorf("expected updatedAt %v, got %v", now, at)
		}
	})

	mt.Run("lost race leaves the order alone", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, orderDoc("ord_1", models.StatusPaid)),
		)

		_, ok, err := NewMongoOrderStore(mt.Coll).CompareAndSetStatus(context.Background(), "ord_1",
			models.StatusPendingPayment, models.StatusCancelled, ReasonExpired, now)
		if err != nil || ok {
			mt.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
		}
	})

	mt.Run("unknown order", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch),
		)

		_, _, err := NewMongoOrderStore(mt.Coll).CompareAndSetStatus(context.Background(), "ghost",
			models.StatusPaid, models.StatusConverted, "", now)
		if !errors.Is(err, ErrOrderNotFound) {
			mt.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

func TestMongoSlotRelease(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	mt.Run("lists cancelled orders still holding a slot", func(mt *mtest.T) {
		doc := append(orderDoc("ord_2", models.StatusCancelled),
			bson.E{Key: "delivery", Value: bson.D{{Key: "date", Value: "2026-03-10"}, {Key: "slotId", Value: "morning"}}})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, doc))

		out, err := NewMongoOrderStore(mt.Coll).ListUnreleased(context.Background(), 5)
		if err != nil || len(out) != 1 || out[0].Delivery == nil || out[0].Delivery.SlotID != "morning" {
			mt.Fatalf("unexpected result %+v err=%v", out, err)
		}

		cmd := startedCommands(mt, "find")[0].Command
		if s, _ := cmd.Lookup("filter", "status").StringValueOK(); s != string(models.StatusCancelled) {
			mt.Errorf("unexpected status filter %q", s)
		}
		if exists, ok := cmd.Lookup("filter", "slotReleasedAt", "$exists").BooleanOK(); !ok || exists {
			mt.Errorf("expected unreleased filter, got %v", cmd.Lookup("filter"))
		}
		if n, _ := cmd.Lookup("limit").AsInt64OK(); n != 5 {
			mt.Errorf("expected limit 5, got %d", n)
		}
	})

	mt.Run("marks release", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		if err := NewMongoOrderStore(mt.Coll).MarkSlotReleased(context.Background(), "ord_2", now); err != nil {
			mt.Fatalf("mark: %v", err)
		}
		cmd := startedCommands(mt, "update")[0].Command
		if at, ok := cmd.Lookup("updates", "0", "u", "$set", "slotReleasedAt").TimeOK(); !ok || !at.Equal(now) {
			mt.Errorf("expected slotReleasedAt %v, got %v", now, at)
		}
	})

	mt.Run("marks unknown order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		if err := NewMongoOrderStore(mt.Coll).MarkSlotReleased(context.Background(), "ghost", now); !errors.Is(err, ErrOrderNotFound) {
			mt.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}
