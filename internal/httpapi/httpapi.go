// Package httpapi is a read-only HTTP/JSON view of a store.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
)

// NodeRequest addresses a node by id, decimal or 0x-prefixed hex.
type NodeRequest struct {
	NID string `uri:"nid" binding:"required"`
}

type HandlerFunc[R any] func(context.Context, ndb.NID) (R, error)

type API struct {
	store *pstdb.Store
	token string
	sugar *zap.SugaredLogger
}

func New(store *pstdb.Store, token string, logger *zap.Logger) *API {
	return &API{store: store, token: token, sugar: logger.Sugar()}
}

// Handler builds the gin engine:
//
//	GET /store
//	GET /nodes/:nid
//	GET /nodes/:nid/properties
//	GET /nodes/:nid/table
//	GET /nodes/:nid/rowids
//	GET /folders/:nid/subfolders
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.logRequests, a.ensureValidToken)

	r.GET("/store", func(c *gin.Context) {
		props, err := a.store.MessageStore()
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, pstdb.PlainProperties(props))
	})
	nodes := r.Group("/nodes/:nid")
	nodes.GET("", wrap(a, a.node))
	nodes.GET("/properties", wrap(a, a.properties))
	nodes.GET("/table", wrap(a, a.table))
	nodes.GET("/rowids", wrap(a, a.rowIDs))
	r.GET("/folders/:nid/subfolders", wrap(a, a.subfolders))
	return r
}

func wrap[R any](a *API, h HandlerFunc[R]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NodeRequest
		if err := c.ShouldBindUri(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, err := strconv.ParseUint(req.NID, 0, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad node id " + req.NID})
			return
		}
		res, err := h(c.Request.Context(), ndb.NID(n))
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (a *API) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ndb.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ltp.ErrWrongContext):
		code = http.StatusConflict
	case errors.Is(err, ndb.ErrUnsupported):
		code = http.StatusNotImplemented
	case errors.Is(err, pstdb.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ndb.ErrStructural):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		a.sugar.Errorw("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (a *API) logRequests(c *gin.Context) {
	c.Next()
	a.sugar.Debugw("http", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
}

func (a *API) ensureValidToken(c *gin.Context) {
	if a.token == "" {
		return
	}
	got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func (a *API) node(_ context.Context, nid ndb.NID) (map[string]any, error) {
	e, err := a.store.LookupNode(nid)
	if err != nil {
		return nil, err
	}
	return pstdb.PlainNode(e), nil
}

func (a *API) properties(_ context.Context, nid ndb.NID) (map[string]any, error) {
	props, err := a.store.ReadPropertyContext(nid)
	if err != nil {
		return nil, err
	}
	return pstdb.PlainProperties(props), nil
}

func (a *API) table(_ context.Context, nid ndb.NID) ([]map[string]any, error) {
	rows, err := a.store.ReadTable(nid)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = pstdb.PlainRow(r)
	}
	return out, nil
}

func (a *API) rowIDs(_ context.Context, nid ndb.NID) ([]uint32, error) {
	return a.store.ReadTableRowIDs(nid)
}

func (a *API) subfolders(_ context.Context, nid ndb.NID) ([]ndb.NID, error) {
	return a.store.Subfolders(nid)
}
