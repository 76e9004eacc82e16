package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/config"
)

const (
	airtableBaseURL     = "https://api.airtable.com/v0"
	airtableHTTPTimeout = 15 * time.Second
	airtableMaxPages    = 50
)

const (
	fieldUnit        = "Unit"
	fieldCategory    = "Category"
	fieldDescription = "Description"
	fieldStatus      = "Status"
	fieldNotes       = "Notes"
	fieldReported    = "Date Reported"
)

// AirtableClient reads and writes issue records over the Airtable REST API.
type AirtableClient struct {
	apiKey     string
	baseURL    string
	view       string
	httpClient *http.Client
}

var _ Store = (*AirtableClient)(nil)

func NewAirtableClient(cfg config.StoreConfig) (*AirtableClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("airtable api key is required")
	}
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, fmt.Errorf("airtable base id and table are required")
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = airtableBaseURL
	}

	return &AirtableClient{
		apiKey:     cfg.APIKey,
		baseURL:    fmt.Sprintf("%s/%s/%s", base, cfg.BaseID, url.PathEscape(cfg.Table)),
		view:       cfg.View,
		httpClient: &http.Client{Timeout: airtableHTTPTimeout},
	}, nil
}

type airtableRecord struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"createdTime"`
	Fields      airtableFields `json:"fields"`
}

type airtableFields struct {
	Unit        flexString `json:"Unit,omitempty"`
	Category    string     `json:"Category,omitempty"`
	Description string     `json:"Description,omitempty"`
	Status      string     `json:"Status,omitempty"`
	Notes       string     `json:"Notes,omitempty"`
	Reported    string     `json:"Date Reported,omitempty"`
}

type listResponse struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset,omitempty"`
}

// flexString tolerates the Unit column being numeric or text in the base.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (a *AirtableClient) ListIssues(ctx context.Context) ([]IssueRecord, error) {
	var out []IssueRecord
	offset := ""

	for page := 0; page < airtableMaxPages; page++ {
		resp, err := a.listPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, rec := range resp.Records {
			out = append(out, toIssueRecord(rec))
		}
		if resp.Offset == "" {
			return out, nil
		}
		offset = resp.Offset
	}

	return nil, fmt.Errorf("airtable pagination exceeded %d pages", airtableMaxPages)
}

func (a *AirtableClient) listPage(ctx context.Context, offset string) (*listResponse, error) {
	q := url.Values{}
	if a.view != "" {
		q.Set("view", a.view)
	}
	if offset != "" {
		q.Set("offset", offset)
	}

	reqURL := a.baseURL
	if encoded := q.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build airtable request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list airtable records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("airtable api error: status %d", resp.StatusCode)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode airtable response: %w", err)
	}
	return &list, nil
}

func (a *AirtableClient) CreateIssue(ctx context.Context, fields IssueFields) (IssueRecord, error) {
	payload := map[string]any{
		"fields": createFields(fields),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return IssueRecord{}, fmt.Errorf("marshal airtable fields: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return IssueRecord{}, fmt.Errorf("build airtable request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return IssueRecord{}, fmt.Errorf("create airtable record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return IssueRecord{}, fmt.Errorf("airtable api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rec airtableRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return IssueRecord{}, fmt.Errorf("decode airtable response: %w", err)
	}
	return toIssueRecord(rec), nil
}

func createFields(fields IssueFields) map[string]any {
	m := map[string]any{
		fieldUnit:        fields.Unit,
		fieldCategory:    fields.Category,
		fieldDescription: fields.Description,
	}
	if fields.Status != "" {
		m[fieldStatus] = fields.Status
	}
	if fields.Notes != "" {
		m[fieldNotes] = fields.Notes
	}
	if !fields.Reported.IsZero() {
		m[fieldReported] = fields.Reported.Format("2006-01-02")
	}
	return m
}

func toIssueRecord(rec airtableRecord) IssueRecord {
	return IssueRecord{
		ID:          rec.ID,
		Unit:        string(rec.Fields.Unit),
		Category:    rec.Fields.Category,
		Description: rec.Fields.Description,
		Status:      rec.Fields.Status,
		Notes:       rec.Fields.Notes,
		Reported:    parseReported(rec.Fields.Reported),
		Created:     rec.CreatedTime,
	}
}

// The "Date Reported" column is a date field, but older rows were imported
// with full timestamps. Accept both.
func parseReported(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}
