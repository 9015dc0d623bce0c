package models

// Product is the catalog contract this service reads; it never edits products.
type Product struct {
	ID            string  `json:"id" bson:"_id"`
	Name          string  `json:"name" bson:"name"`
	Unit          string  `json:"unit" bson:"unit"`
	WeightPerUnit float64 `json:"weightPerUnit" bson:"weightPerUnit"` // tons per cubic yard
	StockTons     float64 `json:"stockTons" bson:"stockTons"`
}
