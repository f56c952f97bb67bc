package app

import (
	"context"
	"io"
	"path/filepath"
	"runtime"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/imagecodec"
	"github.com/talkincode/stockledger/internal/ledger"
)

// importRow is one line of a product import file. Image is a file path, relative
// paths resolve against the import file's directory.
type importRow struct {
	Name     string `csv:"name"`
	Category string `csv:"category"`
	Quantity string `csv:"quantity"`
	Price    string `csv:"price"`
	Image    string `csv:"image"`
}

// ImportProducts adds every row of a product CSV through the ledger. Images are
// encoded before any product is added; a row that fails validation stops the import.
func (a *Application) ImportProducts(ctx context.Context, r io.Reader, baseDir string) (int, error) {
	var rows []*importRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, errors.Wrap(err, "parse import file")
	}

	var paths []string
	var owners []int
	for i, row := range rows {
		if row.Image == "" {
			continue
		}
		p := row.Image
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		paths = append(paths, p)
		owners = append(owners, i)
	}
	uris, err := imagecodec.EncodeFiles(ctx, paths, runtime.NumCPU())
	if err != nil {
		return 0, err
	}
	images := make(map[int]string, len(uris))
	for i, uri := range uris {
		images[owners[i]] = uri
	}

	added := 0
	for i, row := range rows {
		in, err := ledger.ParseProductForm(ledger.ProductForm{
			Name:     row.Name,
			Category: row.Category,
			Quantity: row.Quantity,
			Price:    row.Price,
			Image:    images[i],
		})
		if err != nil {
			return added, errors.WithMessagef(err, "row %d", i+1)
		}
		res := a.ledger.AddProduct(ctx, in)
		if !res.Success {
			return added, errors.WithMessagef(res.Err, "row %d", i+1)
		}
		added++
	}
	zap.L().Info("products imported", zap.String("namespace", "app"), zap.Int("count", added))
	return added, nil
}
