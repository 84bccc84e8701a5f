// Package dashboard serves the read-only radar API over the MySQL tables.
package dashboard

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type Handler struct {
	Logger log.Logger
	Config *cfg.Config
	MySQL  *db.Mysql
	db     *gorm.DB
}

func NewHandler(logger log.Logger, config *cfg.Config, mysql *db.Mysql) (*Handler, error) {
	gdb, err := mysql.Db()
	if err != nil {
		return nil, err
	}
	return &Handler{
		Logger: logger,
		Config: config,
		MySQL:  mysql,
		db:     gdb,
	}, nil
}

// RegisterRoutes mounts the /api routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/videos", h.listVideos)
	api.GET("/videos/:id", h.getVideo)
	api.GET("/comments", h.listComments)
	api.GET("/stats/sentiment", h.sentimentStats)
	api.GET("/stats/categories", h.categoryStats)
	api.GET("/stats/risk", h.riskStats)
	api.GET("/sessions", h.listSessions)
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

// pageParams reads page and pageSize. Bad values fall back to 1 and 25,
// oversized pages are capped at 100.
func pageParams(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.Query("pageSize"))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func newPagination(page, pageSize int, total int64) Pagination {
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

const dateLayout = "2006-01-02"
