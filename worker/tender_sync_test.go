package worker

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vidbudova/models"
)

func createKeywordProject(t *testing.T, db *gorm.DB, keyword string) models.Project {
	t.Helper()
	project := models.Project{
		Title:           "School rebuild in Kharkiv",
		Slug:            "school-rebuild-kharkiv-" + keyword,
		Status:          models.ProjectStatusActive,
		Published:       true,
		ProzorroKeyword: keyword,
	}
	require.NoError(t, db.Create(&project).Error)
	return project
}

func TestTenderSyncCreatesAndUpdates(t *testing.T) {
	db := newTestDB(t)
	project := createKeywordProject(t, db, "school")

	status := "active.tendering"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenders/search", r.URL.Path)
		assert.Equal(t, "school", r.URL.Query().Get("title"))
		fmt.Fprintf(w, `{"data":[{
			"id":"UA-2026-01-01-000001",
			"title":"School reconstruction",
			"status":%q,
			"value":{"amount":1500000,"currency":"UAH"},
			"procuringEntity":{"address":{"region":"Kharkiv"}},
			"datePublished":"2026-01-01T10:00:00Z"
		}]}`, status)
	}))
	defer server.Close()

	ts := NewTenderSync(db, testLogger(), server.URL)

	result, err := ts.Run()
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 1, Created: 1}, result)

	var tender models.Tender
	require.NoError(t, db.Where("prozorro_id = ?", "UA-2026-01-01-000001").First(&tender).Error)
	assert.Equal(t, "School reconstruction", tender.Title)
	assert.Equal(t, float64(1500000), tender.ValueAmount)
	require.NotNil(t, tender.MatchedProjectID)
	assert.Equal(t, project.ID, *tender.MatchedProjectID)
	require.NotNil(t, tender.DatePublished)

	// A second run with a changed status updates in place.
	status = "complete"
	result, err = ts.Run()
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 1, Updated: 1}, result)

	require.NoError(t, db.Where("prozorro_id = ?", "UA-2026-01-01-000001").First(&tender).Error)
	assert.Equal(t, "complete", tender.Status)

	var count int64
	require.NoError(t, db.Model(&models.Tender{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTenderSyncSkipsFailingProject(t *testing.T) {
	db := newTestDB(t)
	createKeywordProject(t, db, "bad")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ts := NewTenderSync(db, testLogger(), server.URL)

	result, err := ts.Run()
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)
}

func TestTenderSyncIgnoresUnpublishedAndKeywordlessProjects(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Project{
		Title: "Draft", Slug: "draft", Published: false, ProzorroKeyword: "bridge",
	}).Error)
	require.NoError(t, db.Create(&models.Project{
		Title: "No keyword", Slug: "no-keyword", Published: true,
	}).Error)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer server.Close()

	ts := NewTenderSync(db, testLogger(), server.URL)

	result, err := ts.Run()
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)
}
