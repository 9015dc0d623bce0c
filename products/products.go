// Package products reads the product catalog owned by the storefront.
package products

import (
	"context"
	"errors"
	"fmt"

	"bulkhaul/inventory"
	"bulkhaul/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Catalog is a read-only view of the products collection.
type Catalog struct {
	coll *mongo.Collection
}

func NewCatalog(coll *mongo.Collection) *Catalog {
	return &Catalog{coll: coll}
}

func (c *Catalog) Product(ctx context.Context, id string) (models.Product, error) {
	var p models.Product
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, fmt.Errorf("%w: %q", inventory.ErrProductNotFound, id)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("cannot get product: %w", err)
	}
	return p, nil
}

func (c *Catalog) List(ctx context.Context) ([]models.Product, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot list products: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Product
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("cannot decode products: %w", err)
	}
	return out, nil
}

// Seed inserts products that are not already present. Existing documents
// are left untouched so stock managed elsewhere is never overwritten.
func (c *Catalog) Seed(ctx context.Context, items []models.Product) error {
	for _, p := range items {
		_, err := c.coll.UpdateOne(ctx,
			bson.M{"_id": p.ID},
			bson.M{"$setOnInsert": p},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

// Demo is the starter catalog used in memory mode and for empty databases.
func Demo() []models.Product {
	return []models.Product{
		{ID: "gravel-57", Name: "#57 Crushed Gravel", Unit: models.UnitTon, StockTons: 400},
		{ID: "sand-mason", Name: "Mason Sand", Unit: models.UnitTon, StockTons: 250},
		{ID: "topsoil", Name: "Screened Topsoil", Unit: models.UnitYard, WeightPerUnit: 1.1, StockTons: 180},
		{ID: "mulch-hardwood", Name: "Double-Shredded Hardwood Mulch", Unit: models.UnitYard, WeightPerUnit: 0.4, StockTons: 60},
	}
}
