package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/entities"
)

// RecordsController serves the normalized store.
type RecordsController struct {
	records RecordReader
	cache   *cache.Cache
}

func NewRecordsController(records RecordReader, c *cache.Cache) *RecordsController {
	return &RecordsController{records: records, cache: c}
}

type recordPage struct {
	data  any
	total int64
}

// ListOrders handles GET /orders?limit=&offset=
func (rc *RecordsController) ListOrders(c *gin.Context) {
	rc.list(c, entities.ResourceOrders, func(limit, offset int) (recordPage, error) {
		orders, total, err := rc.records.ListOrders(c.Request.Context(), limit, offset)
		if orders == nil {
			orders = []entities.Order{}
		}
		return recordPage{data: orders, total: total}, err
	})
}

// ListProducts handles GET /products?limit=&offset=
func (rc *RecordsController) ListProducts(c *gin.Context) {
	rc.list(c, entities.ResourceProducts, func(limit, offset int) (recordPage, error) {
		products, total, err := rc.records.ListProducts(c.Request.Context(), limit, offset)
		if products == nil {
			products = []entities.Product{}
		}
		return recordPage{data: products, total: total}, err
	})
}

func (rc *RecordsController) list(c *gin.Context, rt entities.ResourceType, load func(limit, offset int) (recordPage, error)) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	key := cache.Key(rt.String()+":list", map[string]string{
		"limit":  itoa(limit),
		"offset": itoa(offset),
	})
	value, err := cachedRead(rc.cache, key, 0, func() (any, error) {
		page, err := load(limit, offset)
		if err != nil {
			return nil, err
		}
		return newPaginatedResponse(page.data, page.total, limit, offset), nil
	})
	if err != nil {
		respondInternalError(c, err, "list "+rt.String())
		return
	}

	c.JSON(http.StatusOK, value)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
