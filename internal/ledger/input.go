package ledger

import (
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/talkincode/stockledger/internal/domain"
)

// ProductForm is the add-product form as submitted: every field is text and the
// image is already encoded as a data URI.
type ProductForm struct {
	Name     string `form:"P-name"`
	Category string `form:"category"`
	Quantity string `form:"quantity"`
	Price    string `form:"price"`
	Image    string `form:"-"`
}

// ParseProductForm converts form text into a typed input. This is the only place
// quantity and price are parsed from text.
func ParseProductForm(f ProductForm) (domain.ProductInput, error) {
	quantity, err := parseNumber("quantity", f.Quantity)
	if err != nil {
		return domain.ProductInput{}, err
	}
	price, err := parseNumber("price", f.Price)
	if err != nil {
		return domain.ProductInput{}, err
	}
	in := domain.ProductInput{
		Image:    f.Image,
		Name:     strings.TrimSpace(f.Name),
		Category: strings.TrimSpace(f.Category),
		Quantity: quantity,
		Price:    price,
	}
	if err := ValidateInput(in); err != nil {
		return domain.ProductInput{}, err
	}
	return in, nil
}

func parseNumber(field, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, &ValidationError{Field: field, Message: "is required"}
	}
	v, err := cast.ToFloat64E(text)
	if err != nil {
		return 0, &ValidationError{Field: field, Message: "must be a number"}
	}
	return v, nil
}

// ValidateInput checks a product about to be created.
func ValidateInput(in domain.ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if err := checkAmount("quantity", in.Quantity); err != nil {
		return err
	}
	return checkAmount("price", in.Price)
}

// ValidatePatch checks the provided fields of a patch.
func ValidatePatch(p domain.ProductPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if p.Quantity != nil {
		if err := checkAmount("quantity", *p.Quantity); err != nil {
			return err
		}
	}
	if p.Price != nil {
		return checkAmount("price", *p.Price)
	}
	return nil
}

func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Message: "must be a finite number"}
	}
	if v < 0 {
		return &ValidationError{Field: field, Message: "cannot be negative"}
	}
	return nil
}

func validateOrder(quantity, totalPrice float64) error {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity <= 0 {
		return &ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}
	return checkAmount("total_price", totalPrice)
}
