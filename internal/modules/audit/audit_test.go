package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wsic/generator/internal/models"
	"github.com/wsic/generator/internal/pkg/pagination"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "wsic:secret@tcp(127.0.0.1:3306)/wsic_audit?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestRecordBuildsInsert(t *testing.T) {
	db := dryRunDB(t)
	svc := NewService(db)

	run := &models.GenerationRunModel{TopicTitle: "Go", Outcome: models.RunOutcomeInserted, TopicID: "t1"}
	require.NoError(t, svc.Record(context.Background(), run))
	assert.NotEmpty(t, run.ID, "uuid is assigned before create")

	stmt := db.Session(&gorm.Session{DryRun: true}).Create(&models.GenerationRunModel{Outcome: "failed"}).Statement
	assert.Contains(t, stmt.SQL.String(), "INSERT INTO `generation_runs`")
}

func TestListQueryFiltersByOutcome(t *testing.T) {
	svc := NewService(dryRunDB(t))

	stmt := svc.listQuery(context.Background(), pagination.Query{Page: 1, Size: 10, Value: models.RunOutcomeRolledBack}).
		Find(&[]models.GenerationRunModel{}).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "FROM `generation_runs`")
	assert.Contains(t, sql, "outcome = ?")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Equal(t, []any{models.RunOutcomeRolledBack}, stmt.Vars)

	stmt = svc.listQuery(context.Background(), pagination.Query{Page: 1, Size: 10}).
		Find(&[]models.GenerationRunModel{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "outcome")
}

func TestListRejectsUnknownOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewService(dryRunDB(t))).RegisterRoutes(r.Group(""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generation-runs?outcome=published", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "outcome must be one of inserted, rolled_back, failed")
}
