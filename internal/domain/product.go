package domain

// Product is one inventory item.
type Product struct {
	ID       int64  `json:"id"`
	Image    string `json:"image"`    // data URI, stored as given
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity Amount `json:"quantity"`
	Price    Amount `json:"price"` // unit price
}

// SoldRecord accumulates fulfilled orders for one product.
// Price is cumulative revenue, not a unit price.
type SoldRecord struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"` // name at first sale
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// ProductInput carries the fields of a product to be created.
type ProductInput struct {
	Image    string  `json:"image"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// ProductPatch lists the fields to overwrite on update. A nil field is left alone.
type ProductPatch struct {
	Image    *string  `json:"image"`
	Name     *string  `json:"name"`
	Category *string  `json:"category"`
	Quantity *float64 `json:"quantity"`
	Price    *float64 `json:"price"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Image == nil && p.Name == nil && p.Category == nil && p.Quantity == nil && p.Price == nil
}

// Apply merges the patch over the product.
func (p ProductPatch) Apply(target *Product) {
	if p.Image != nil {
		target.Image = *p.Image
	}
	if p.Name != nil {
		target.Name = *p.Name
	}
	if p.Category != nil {
		target.Category = *p.Category
	}
	if p.Quantity != nil {
		target.Quantity = Num(*p.Quantity)
	}
	if p.Price != nil {
		target.Price = Num(*p.Price)
	}
}

// NewProduct builds a product from validated input.
func NewProduct(id int64, in ProductInput) Product {
	return Product{
		ID:       id,
		Image:    in.Image,
		Name:     in.Name,
		Category: in.Category,
		Quantity: Num(in.Quantity),
		Price:    Num(in.Price),
	}
}
