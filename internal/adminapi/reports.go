package adminapi

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/stockledger/internal/report"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type summaryData struct {
	TotalQuantity *float64       `json:"total_quantity"` // null when non-numeric data poisoned the sum
	TotalPrice    *float64       `json:"total_price"`
	Skipped       []int64        `json:"skipped,omitempty"`
	Report        report.Summary `json:"report"`
}

func registerReportRoutes(g *echo.Group) {
	g.GET("/sold", listSoldRecords)
	g.GET("/summary", getSummary)
	g.GET("/export/products.csv", exportProductsCSV)
	g.GET("/export/sold.csv", exportSoldCSV)
	g.GET("/export/report.xlsx", exportWorkbook)
}

func listSoldRecords(c echo.Context) error {
	return ok(c, GetLedger(c).GetSoldRecords())
}

func getSummary(c echo.Context) error {
	svc := GetLedger(c)
	totals := svc.CalculateTotalQuantityAndPrice()
	data := summaryData{
		Skipped: totals.Skipped,
		Report:  report.Summarize(svc.GetAllProducts(), svc.GetSoldRecords()),
	}
	if !totals.IsNaN() {
		data.TotalQuantity = &totals.TotalQuantity
		data.TotalPrice = &totals.TotalPrice
	}
	return ok(c, data)
}

func exportProductsCSV(c echo.Context) error {
	return attachment(c, "products.csv", "text/csv", func(w io.Writer) error {
		return report.WriteProductsCSV(w, GetLedger(c).GetAllProducts())
	})
}

func exportSoldCSV(c echo.Context) error {
	return attachment(c, "sold.csv", "text/csv", func(w io.Writer) error {
		return report.WriteSoldCSV(w, GetLedger(c).GetSoldRecords())
	})
}

func exportWorkbook(c echo.Context) error {
	svc := GetLedger(c)
	return attachment(c, "report.xlsx", mimeXLSX, func(w io.Writer) error {
		return report.WriteWorkbook(w, svc.GetAllProducts(), svc.GetSoldRecords())
	})
}

func attachment(c echo.Context, name, contentType string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to export "+name, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}
