package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/talkincode/stockledger/internal/domain"
	"github.com/talkincode/stockledger/internal/imagecodec"
	"github.com/talkincode/stockledger/internal/ledger"
)

// productPayload accepts quantity and price as numbers or numeric strings
type productPayload struct {
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Image    string      `json:"image"`
	Quantity interface{} `json:"quantity"`
	Price    interface{} `json:"price"`
}

type productUpdatePayload struct {
	Name     *string  `json:"name"`
	Category *string  `json:"category"`
	Image    *string  `json:"image"`
	Quantity *float64 `json:"quantity"`
	Price    *float64 `json:"price"`
}

type orderPayload struct {
	Quantity   float64  `json:"quantity"`
	TotalPrice *float64 `json:"total_price"` // defaults to quantity * unit price
}

func registerProductRoutes(g *echo.Group) {
	g.GET("/products", listProducts)
	g.GET("/products/:id", getProduct)
	g.POST("/products", createProduct)
	g.POST("/products/form", createProductFromForm)
	g.PUT("/products/:id", updateProduct)
	g.DELETE("/products/:id", deleteProduct)
	g.POST("/products/:id/order", orderProduct)
}

func listProducts(c echo.Context) error {
	q := strings.ToLower(strings.TrimSpace(c.QueryParam("q")))
	category := strings.TrimSpace(c.QueryParam("category"))

	rows := make([]domain.Product, 0)
	for _, p := range GetLedger(c).GetAllProducts() {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		rows = append(rows, p)
	}

	page, pageSize := parsePagination(c)
	total := int64(len(rows))
	if pageSize == 0 {
		// no paging requested: the whole table, like the inventory page renders it
		return paged(c, rows, total, 1, len(rows))
	}
	start := (page - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return paged(c, rows[start:end], total, page, pageSize)
}

func getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	p, found := GetLedger(c).GetProduct(id)
	if !found {
		return fail(c, http.StatusNotFound, "NOT_FOUND", ledger.MsgProductNotFound, nil)
	}
	return ok(c, p)
}

func createProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	in, err := ledger.ParseProductForm(ledger.ProductForm{
		Name:     payload.Name,
		Category: payload.Category,
		Quantity: cast.ToString(payload.Quantity),
		Price:    cast.ToString(payload.Price),
		Image:    strings.TrimSpace(payload.Image),
	})
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	}
	return result(c, GetLedger(c).AddProduct(c.Request().Context(), in), nil)
}

// createProductFromForm takes the add-product form with its image upload.
func createProductFromForm(c echo.Context) error {
	form := ledger.ProductForm{
		Name:     c.FormValue("P-name"),
		Category: c.FormValue("category"),
		Quantity: c.FormValue("quantity"),
		Price:    c.FormValue("price"),
	}
	file, err := c.FormFile("product-image")
	switch {
	case err == nil:
		src, err := file.Open()
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Unable to read image", err.Error())
		}
		defer src.Close()
		form.Image, err = imagecodec.EncodeDataURI(src)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Unable to encode image", err.Error())
		}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse form", err.Error())
	}

	in, err := ledger.ParseProductForm(form)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	}
	return result(c, GetLedger(c).AddProduct(c.Request().Context(), in), nil)
}

func updateProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload productUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	if payload.Name != nil {
		name := strings.TrimSpace(*payload.Name)
		payload.Name = &name
	}
	patch := domain.ProductPatch{
		Image:    payload.Image,
		Name:     payload.Name,
		Category: payload.Category,
		Quantity: payload.Quantity,
		Price:    payload.Price,
	}
	svc := GetLedger(c)
	res := svc.UpdateProduct(c.Request().Context(), id, patch)
	if !res.Success {
		return result(c, res, nil)
	}
	p, _ := svc.GetProduct(id)
	return result(c, res, p)
}

func deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	res := GetLedger(c).DeleteProduct(c.Request().Context(), id)
	return result(c, res, map[string]interface{}{"id": id})
}

func orderProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse order", err.Error())
	}

	svc := GetLedger(c)
	var res ledger.Result
	if payload.TotalPrice != nil {
		res = svc.OrderProduct(c.Request().Context(), id, payload.Quantity, *payload.TotalPrice)
	} else {
		res = svc.OrderProductAtListPrice(c.Request().Context(), id, payload.Quantity)
	}
	if !res.Success {
		return result(c, res, nil)
	}
	var record *domain.SoldRecord
	for _, r := range svc.GetSoldRecords() {
		if r.ID == id {
			r := r
			record = &r
			break
		}
	}
	return result(c, res, record)
}
