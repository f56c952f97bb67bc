// Package report exports the ledger as CSV and XLSX and computes summary statistics.
package report

import (
	"fmt"
	"io"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/talkincode/stockledger/internal/domain"
)

type productRow struct {
	ID       int64  `csv:"id"`
	Name     string `csv:"name"`
	Category string `csv:"category"`
	Quantity string `csv:"quantity"`
	Price    string `csv:"price"`
}

type soldRow struct {
	ID       int64   `csv:"id"`
	Name     string  `csv:"name"`
	Quantity float64 `csv:"quantity"`
	Revenue  float64 `csv:"price"`
}

// Images are left out of exports; they are data URIs and can run to megabytes.
func productRows(products []domain.Product) []*productRow {
	rows := make([]*productRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, &productRow{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Quantity: p.Quantity.String(),
			Price:    p.Price.String(),
		})
	}
	return rows
}

func soldRows(sold []domain.SoldRecord) []*soldRow {
	rows := make([]*soldRow, 0, len(sold))
	for _, r := range sold {
		rows = append(rows, &soldRow{ID: r.ID, Name: r.Name, Quantity: r.Quantity, Revenue: r.Price})
	}
	return rows
}

func WriteProductsCSV(w io.Writer, products []domain.Product) error {
	if err := gocsv.Marshal(productRows(products), w); err != nil {
		return errors.Wrap(err, "report: write products csv")
	}
	return nil
}

func WriteSoldCSV(w io.Writer, sold []domain.SoldRecord) error {
	if err := gocsv.Marshal(soldRows(sold), w); err != nil {
		return errors.Wrap(err, "report: write sold csv")
	}
	return nil
}

const (
	SheetProducts = "Products"
	SheetSold     = "Sold"
)

func cell(col, row int) string {
	return fmt.Sprintf("%c%d", 'A'+col, row)
}

// WriteWorkbook writes a workbook with a Products sheet and a Sold sheet.
func WriteWorkbook(w io.Writer, products []domain.Product, sold []domain.SoldRecord) error {
	xlsx := excelize.NewFile()
	xlsx.SetSheetName("Sheet1", SheetProducts)
	xlsx.NewSheet(SheetSold)

	for i, h := range []string{"id", "name", "category", "quantity", "price"} {
		xlsx.SetCellValue(SheetProducts, cell(i, 1), h)
	}
	for i, p := range products {
		row := i + 2
		xlsx.SetCellValue(SheetProducts, cell(0, row), p.ID)
		xlsx.SetCellValue(SheetProducts, cell(1, row), p.Name)
		xlsx.SetCellValue(SheetProducts, cell(2, row), p.Category)
		if v, ok := p.Quantity.Float(); ok {
			xlsx.SetCellValue(SheetProducts, cell(3, row), v)
		} else {
			xlsx.SetCellValue(SheetProducts, cell(3, row), p.Quantity.String())
		}
		if v, ok := p.Price.Float(); ok {
			xlsx.SetCellValue(SheetProducts, cell(4, row), v)
		} else {
			xlsx.SetCellValue(SheetProducts, cell(4, row), p.Price.String())
		}
	}

	for i, h := range []string{"id", "name", "quantity", "revenue"} {
		xlsx.SetCellValue(SheetSold, cell(i, 1), h)
	}
	for i, r := range sold {
		row := i + 2
		xlsx.SetCellValue(SheetSold, cell(0, row), r.ID)
		xlsx.SetCellValue(SheetSold, cell(1, row), r.Name)
		xlsx.SetCellValue(SheetSold, cell(2, row), r.Quantity)
		xlsx.SetCellValue(SheetSold, cell(3, row), r.Price)
	}

	if err := xlsx.Write(w); err != nil {
		return errors.Wrap(err, "report: write workbook")
	}
	return nil
}

// Summary describes the catalogue and sales.
type Summary struct {
	Products        int                `json:"products"`
	PricedProducts  int                `json:"priced_products"`
	MeanUnitPrice   float64            `json:"mean_unit_price"`
	MedianUnitPrice float64            `json:"median_unit_price"`
	UnitsSold       float64            `json:"units_sold"`
	Revenue         float64            `json:"revenue"`
	BestSeller      *domain.SoldRecord `json:"best_seller,omitempty"`
}

// Summarize computes price statistics over products with a numeric price and
// sales totals over the sold records.
func Summarize(products []domain.Product, sold []domain.SoldRecord) Summary {
	s := Summary{Products: len(products)}

	prices := stats.Float64Data{}
	for _, p := range products {
		if v, ok := p.Price.Float(); ok {
			prices = append(prices, v)
		}
	}
	s.PricedProducts = len(prices)
	if len(prices) > 0 {
		s.MeanUnitPrice, _ = stats.Mean(prices)
		s.MedianUnitPrice, _ = stats.Median(prices)
	}

	units := stats.Float64Data{}
	revenue := stats.Float64Data{}
	for i, r := range sold {
		units = append(units, r.Quantity)
		revenue = append(revenue, r.Price)
		if s.BestSeller == nil || r.Quantity > s.BestSeller.Quantity {
			best := sold[i]
			s.BestSeller = &best
		}
	}
	if len(sold) > 0 {
		s.UnitsSold, _ = stats.Sum(units)
		s.Revenue, _ = stats.Sum(revenue)
	}
	return s
}
