// Package imagecodec turns uploaded images into the data URIs stored on products.
package imagecodec

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// MaxImageSize bounds a single encoded upload.
const MaxImageSize = 5 << 20

var (
	ErrEmpty    = errors.New("imagecodec: empty image")
	ErrTooLarge = errors.New("imagecodec: image too large")
	ErrNotImage = errors.New("imagecodec: not an image")
)

// EncodeDataURI reads r and returns data:<mime>;base64,<payload>.
func EncodeDataURI(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", errors.Wrap(err, "imagecodec: read image")
	}
	return EncodeBytes(data)
}

// EncodeBytes is EncodeDataURI over an in-memory image.
func EncodeBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxImageSize {
		return "", ErrTooLarge
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", errors.Wrapf(ErrNotImage, "detected %s", mime.String())
	}
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mime.String()) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(mime.String())
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String(), nil
}

// EncodeFiles encodes the files at paths concurrently, at most limit at a time.
// Results keep the order of paths. The first failure cancels the rest.
func EncodeFiles(ctx context.Context, paths []string, limit int) ([]string, error) {
	out := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrapf(err, "imagecodec: open %s", path)
			}
			defer f.Close()
			uri, err := EncodeDataURI(f)
			if err != nil {
				return errors.WithMessage(err, path)
			}
			out[i] = uri
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
