package model

// ProductRanking represents a ranked product based on accumulated quantities.
// TotalValue is carried as a string so the aggregate survives the database
// round trip without passing through a float.
type ProductRanking struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	ProductSKU    string `json:"product_sku"`
	TotalQuantity int    `json:"total_quantity"`
	TotalValue    string `json:"total_value"`
}
