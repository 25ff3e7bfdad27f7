// Package audit keeps a durable row per insertion attempt in MySQL.
package audit

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/wsic/generator/internal/models"
	"github.com/wsic/generator/internal/pkg/pagination"
	"github.com/wsic/generator/internal/pkg/response"
	"gorm.io/gorm"
)

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// Record stores one run. It satisfies insertion.Recorder.
func (s *Service) Record(ctx context.Context, run *models.GenerationRunModel) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// outcomeFilter restricts the ?outcome= parameter of the run listing.
var outcomeFilter = pagination.Filter{
	Param:   "outcome",
	Allowed: []string{models.RunOutcomeInserted, models.RunOutcomeRolledBack, models.RunOutcomeFailed},
}

// List returns one page of runs, newest first, narrowed to q.Value when set.
func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.GenerationRunModel, response.Pagination, error) {
	tx := s.listQuery(ctx, q)
	var items []models.GenerationRunModel
	pag, err := pagination.Find(tx, q, &items)
	return items, pag, err
}

func (s *Service) listQuery(ctx context.Context, q pagination.Query) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.GenerationRunModel{}).Scopes(q.Scope("outcome"))
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.GenerationRunModel, error) {
	var r models.GenerationRunModel
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/generation-runs")
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

func (h *Handler) list(c *gin.Context) {
	q, err := pagination.Parse(c, outcomeFilter)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	items, pag, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) get(c *gin.Context) {
	r, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if r == nil {
		response.NotFoundMsg(c, "generation run not found")
		return
	}
	response.OK(c, r)
}
