package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/stockledger/internal/ledger"
)

const ledgerContextKey = "ledger"

// Response is the envelope of every api reply.
type Response struct {
	Code  string      `json:"code"`
	Msg   string      `json:"msg"`
	Data  interface{} `json:"data,omitempty"`
	Error interface{} `json:"error,omitempty"`
}

// PageData wraps one page of a list.
type PageData struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Code: "SUCCESS", Msg: "ok", Data: data})
}

func okMsg(c echo.Context, msg string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Code: "SUCCESS", Msg: msg, Data: data})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, Response{Code: code, Msg: msg, Error: detail})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return ok(c, PageData{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// result renders a ledger result. Failures map their kind to a status code.
func result(c echo.Context, res ledger.Result, data interface{}) error {
	if res.Success {
		return okMsg(c, res.Message, data)
	}
	var detail interface{}
	if res.Err != nil {
		detail = res.Err.Error()
	}
	switch res.Kind {
	case ledger.KindValidation:
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", res.Message, detail)
	case ledger.KindNotFound:
		return fail(c, http.StatusNotFound, "NOT_FOUND", res.Message, detail)
	case ledger.KindInsufficientStock:
		return fail(c, http.StatusConflict, "INSUFFICIENT_STOCK", res.Message, detail)
	case ledger.KindPersistence:
		return fail(c, http.StatusInternalServerError, "STORAGE_ERROR", res.Message, detail)
	default:
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", res.Message, detail)
	}
}

// GetLedger returns the ledger service bound to the request.
func GetLedger(c echo.Context) *ledger.Service {
	return c.Get(ledgerContextKey).(*ledger.Service)
}

func parsePagination(c echo.Context) (int, int) {
	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 0
	for _, name := range []string{"perPage", "pageSize"} {
		if ps, err := strconv.Atoi(c.QueryParam(name)); err == nil && ps > 0 && ps <= 500 {
			pageSize = ps
			break
		}
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
