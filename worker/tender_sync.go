package worker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
)

// SyncResult aggregates counters across one tender sync run.
type SyncResult struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// TenderSync pulls Prozorro tenders matching each project's keyword and
// upserts them locally for admin review.
type TenderSync struct {
	DB      *gorm.DB
	Logger  *logrus.Entry
	BaseURL string
	Client  *http.Client
}

func NewTenderSync(db *gorm.DB, logger *logrus.Entry, baseURL string) *TenderSync {
	return &TenderSync{
		DB:      db,
		Logger:  logger,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type prozorroTender struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Value  struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"value"`
	ProcuringEntity struct {
		Address struct {
			Region string `json:"region"`
		} `json:"address"`
	} `json:"procuringEntity"`
	DatePublished string `json:"datePublished"`
}

type prozorroSearchResponse struct {
	Data []prozorroTender `json:"data"`
}

// Run syncs tenders for every published project that carries a Prozorro
// keyword. Per-project fetch errors are logged and skipped; database
// errors abort the run.
func (ts *TenderSync) Run() (SyncResult, error) {
	var result SyncResult

	var projects []models.Project
	if err := ts.DB.
		Where("published = ? AND prozorro_keyword <> ''", true).
		Find(&projects).Error; err != nil {
		return result, fmt.Errorf("failed to fetch projects: %w", err)
	}

	for _, project := range projects {
		tenders, err := ts.search(project.ProzorroKeyword)
		if err != nil {
			ts.Logger.WithError(err).WithField("project_id", project.ID).Warn("Tender search failed, skipping project")
			continue
		}
		result.Fetched += len(tenders)

		for _, t := range tenders {
			created, err := ts.upsert(&project, &t)
			if err != nil {
				return result, err
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}

	ts.Logger.WithFields(logrus.Fields{
		"fetched": result.Fetched,
		"created": result.Created,
		"updated": result.Updated,
	}).Info("Tender sync finished")

	return result, nil
}

func (ts *TenderSync) search(keyword string) ([]prozorroTender, error) {
	endpoint := fmt.Sprintf("%s/tenders/search?title=%s", ts.BaseURL, url.QueryEscape(keyword))

	resp, err := ts.Client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("prozorro request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prozorro returned status %d", resp.StatusCode)
	}

	var parsed prozorroSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode prozorro response: %w", err)
	}
	return parsed.Data, nil
}

func (ts *TenderSync) upsert(project *models.Project, t *prozorroTender) (created bool, err error) {
	var datePublished *time.Time
	if t.DatePublished != "" {
		if parsed, perr := time.Parse(time.RFC3339, t.DatePublished); perr == nil {
			datePublished = &parsed
		}
	}

	var existing models.Tender
	err = ts.DB.Where("prozorro_id = ?", t.ID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		tender := models.Tender{
			ProzorroID:       t.ID,
			Title:            t.Title,
			Status:           t.Status,
			ValueAmount:      t.Value.Amount,
			ValueCurrency:    t.Value.Currency,
			Region:           t.ProcuringEntity.Address.Region,
			DatePublished:    datePublished,
			MatchedProjectID: &project.ID,
		}
		if err := ts.DB.Create(&tender).Error; err != nil {
			return false, fmt.Errorf("failed to create tender %s: %w", t.ID, err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up tender %s: %w", t.ID, err)
	}

	updates := map[string]interface{}{
		"title":          t.Title,
		"status":         t.Status,
		"value_amount":   t.Value.Amount,
		"value_currency": t.Value.Currency,
	}
	if err := ts.DB.Model(&existing).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("failed to update tender %s: %w", t.ID, err)
	}
	return false, nil
}
