package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/stockledger/internal/imagecodec"
)

func registerImageRoutes(g *echo.Group) {
	g.POST("/images/preview", previewImage)
}

// previewImage returns the data URI an upload would be stored as.
func previewImage(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Image file is required", err.Error())
	}
	src, err := file.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Unable to read image", err.Error())
	}
	defer src.Close()

	uri, err := imagecodec.EncodeDataURI(src)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Unable to encode image", err.Error())
	}
	return ok(c, map[string]string{"image": uri})
}
