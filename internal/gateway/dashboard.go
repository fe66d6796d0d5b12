package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/naka-gawa/prdash/internal/domain"
	"golang.org/x/oauth2"
)

const enhancePrefix = "/api/enhance/close-actor"

// DashboardAPI defines the behavior of a gateway for the dashboard's
// close-actor enhancement endpoints.
type DashboardAPI interface {
	FetchStatus(ctx context.Context) (*domain.JobStatus, error)
	FetchProgress(ctx context.Context) (*domain.ProgressSnapshot, error)
	StartEnhancement(ctx context.Context) (*domain.ProgressSnapshot, error)
	StopEnhancement(ctx context.Context) (*domain.ProgressSnapshot, error)
	FetchMissingPRs(ctx context.Context) ([]domain.MissingPrRecord, error)
	SubmitManualUpdates(ctx context.Context, updates []domain.CloseActorUpdate) (*domain.UpdateResults, error)
	RunRefreshStep(ctx context.Context, path string) (*StepResult, error)
}

// StepResult is the response of a single data-refresh endpoint.
type StepResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DashboardClient is the concrete implementation of the DashboardAPI interface.
type DashboardClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *log.Logger
}

// Wire shapes. Optional fields are pointers so partial or legacy
// responses decode without error.
type statusResponse struct {
	IsRunning    bool                 `json:"is_running"`
	IsStopping   bool                 `json:"is_stopping"`
	IsStopped    bool                 `json:"is_stopped"`
	IsAvailable  bool                 `json:"is_available"`
	HasError     bool                 `json:"has_error"`
	ExistingData *domain.CoverageInfo `json:"existing_data"`
	Error        string               `json:"error"`
	ErrorKind    string               `json:"error_kind"`
}

type progressResponse struct {
	Status       string `json:"status"`
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`
	Enhanced     int    `json:"enhanced"`
	Failed       int    `json:"failed"`
	CurrentRepo  string `json:"current_repo"`
	CurrentFile  string `json:"current_file"`
	ErrorMessage string `json:"error_message"`
	Error        string `json:"error"`
	ErrorKind    string `json:"error_kind"`
}

type actionResponse struct {
	Error     string            `json:"error"`
	ErrorKind string            `json:"error_kind"`
	Progress  *progressResponse `json:"progress"`
}

type missingResponse struct {
	Error      string                   `json:"error"`
	MissingPRs []domain.MissingPrRecord `json:"missing_prs"`
}

type manualUpdateRequest struct {
	Updates []domain.CloseActorUpdate `json:"updates"`
}

type manualUpdateResponse struct {
	Error   string               `json:"error"`
	Results domain.UpdateResults `json:"results"`
}

type stepResponse struct {
	StepResult
	Error string `json:"error"`
}

// NewDashboardClient is a constructor that creates a new instance of DashboardClient.
// An empty token sends unauthenticated requests.
func NewDashboardClient(baseURL, token string, timeout time.Duration, logger *log.Logger) (DashboardAPI, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dashboard URL %q must be absolute", baseURL)
	}
	httpClient := &http.Client{Timeout: timeout}
	if token != "" {
		httpClient.Transport = &oauth2.Transport{
			Base:   http.DefaultTransport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}
	return &DashboardClient{baseURL: u, httpClient: httpClient, logger: logger}, nil
}

func (c *DashboardClient) FetchStatus(ctx context.Context) (*domain.JobStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, enhancePrefix+"/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch enhancement status: %w", err)
	}
	if resp.Error != "" {
		return nil, domain.NewAPIError(resp.ErrorKind, resp.Error)
	}
	return &domain.JobStatus{
		IsRunning:    resp.IsRunning,
		IsStopping:   resp.IsStopping,
		IsStopped:    resp.IsStopped,
		IsAvailable:  resp.IsAvailable,
		HasError:     resp.HasError,
		ExistingData: resp.ExistingData,
	}, nil
}

func (c *DashboardClient) FetchProgress(ctx context.Context) (*domain.ProgressSnapshot, error) {
	var resp progressResponse
	if err := c.do(ctx, http.MethodGet, enhancePrefix+"/progress", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch enhancement progress: %w", err)
	}
	if resp.Error != "" {
		return nil, domain.NewAPIError(resp.ErrorKind, resp.Error)
	}
	return resp.snapshot(), nil
}

func (c *DashboardClient) StartEnhancement(ctx context.Context) (*domain.ProgressSnapshot, error) {
	c.logger.Println("Requesting enhancement start...")
	return c.action(ctx, "start")
}

func (c *DashboardClient) StopEnhancement(ctx context.Context) (*domain.ProgressSnapshot, error) {
	c.logger.Println("Requesting enhancement stop...")
	return c.action(ctx, "stop")
}

func (c *DashboardClient) action(ctx context.Context, name string) (*domain.ProgressSnapshot, error) {
	var resp actionResponse
	if err := c.do(ctx, http.MethodPost, enhancePrefix+"/"+name, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to %s enhancement: %w", name, err)
	}
	if resp.Error != "" {
		return nil, domain.NewAPIError(resp.ErrorKind, resp.Error)
	}
	if resp.Progress == nil {
		return nil, nil
	}
	return resp.Progress.snapshot(), nil
}

func (c *DashboardClient) FetchMissingPRs(ctx context.Context) ([]domain.MissingPrRecord, error) {
	var resp missingResponse
	if err := c.do(ctx, http.MethodGet, enhancePrefix+"/missing-prs", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch missing PRs: %w", err)
	}
	if resp.Error != "" {
		return nil, domain.NewAPIError("", resp.Error)
	}
	c.logger.Printf("Fetched %d PRs missing a close actor.\n", len(resp.MissingPRs))
	return resp.MissingPRs, nil
}

func (c *DashboardClient) SubmitManualUpdates(ctx context.Context, updates []domain.CloseActorUpdate) (*domain.UpdateResults, error) {
	var resp manualUpdateResponse
	body := manualUpdateRequest{Updates: updates}
	if err := c.do(ctx, http.MethodPost, enhancePrefix+"/manual-update", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to submit manual updates: %w", err)
	}
	if resp.Error != "" {
		return nil, domain.NewAPIError("", resp.Error)
	}
	return &resp.Results, nil
}

func (c *DashboardClient) RunRefreshStep(ctx context.Context, path string) (*StepResult, error) {
	var resp stepResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to run refresh step %s: %w", path, err)
	}
	if resp.Error != "" {
		return nil, domain.NewAPIError("", resp.Error)
	}
	if strings.EqualFold(resp.Status, "error") {
		return nil, domain.NewAPIError("", resp.Message)
	}
	return &resp.StepResult, nil
}

// do sends a JSON request and decodes the JSON response into out. Error
// statuses whose body still carries an "error" field are decoded normally
// so the caller can surface the server's message.
func (c *DashboardClient) do(ctx context.Context, method, path string, in, out any) error {
	endpoint := c.baseURL.JoinPath(path)

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && !hasErrorField(raw) {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func hasErrorField(raw []byte) bool {
	var probe struct {
		Error string `json:"error"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.Error != ""
}

func (p *progressResponse) snapshot() *domain.ProgressSnapshot {
	return &domain.ProgressSnapshot{
		Status:       domain.ParseState(p.Status),
		Processed:    p.Processed,
		Total:        p.Total,
		Enhanced:     p.Enhanced,
		Failed:       p.Failed,
		CurrentRepo:  p.CurrentRepo,
		CurrentFile:  p.CurrentFile,
		ErrorMessage: p.ErrorMessage,
	}
}
