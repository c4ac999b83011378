// Package azure implements port.DocumentAnalyzer over the Azure Document
// Intelligence REST API, producing a searchable PDF for each document.
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"claimsqa/internal/config"
	"claimsqa/internal/domain"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
)

const (
	serviceName = "document-intelligence"

	defaultModel        = "prebuilt-read"
	defaultAPIVersion   = "2024-11-30"
	defaultPollInterval = time.Second
	defaultTimeout      = 120 * time.Second
)

// Client implements port.DocumentAnalyzer.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	pollInterval time.Duration
	timeout      time.Duration
	client       *http.Client
}

// New creates a Document Intelligence client from the analyzer config.
func New(cfg *config.AnalyzerConfig) *Client {
	c := &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		apiVersion:   cfg.APIVersion,
		pollInterval: cfg.PollInterval,
		timeout:      time.Duration(cfg.TimeoutSecs) * time.Second,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.apiVersion == "" {
		c.apiVersion = defaultAPIVersion
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// Analyze submits the document, waits for the analysis to finish and
// downloads the searchable PDF rendition.
func (c *Client) Analyze(ctx context.Context, input port.AnalyzeInput) (*port.AnalyzeOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := observability.LoggerFromContext(ctx)

	opLocation, err := c.submit(ctx, input.FileBytes)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("document_id", input.DocumentID).Str("operation", opLocation).
		Msg("azure.Analyze: analysis submitted")

	result, err := c.poll(ctx, opLocation)
	if err != nil {
		return nil, err
	}

	resultID, err := resultIDFromLocation(opLocation)
	if err != nil {
		return nil, err
	}

	modelID := result.AnalyzeResult.ModelID
	if modelID == "" {
		modelID = c.model
	}
	pdf, err := c.downloadPDF(ctx, modelID, resultID)
	if err != nil {
		return nil, err
	}

	return &port.AnalyzeOutput{
		SearchablePDF: pdf,
		Content:       result.AnalyzeResult.Content,
		PageCount:     len(result.AnalyzeResult.Pages),
		ModelID:       modelID,
		OperationID:   resultID,
	}, nil
}

func (c *Client) submit(ctx context.Context, doc []byte) (string, error) {
	q := url.Values{}
	q.Set("api-version", c.apiVersion)
	q.Set("output", "pdf")
	analyzeURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?%s",
		c.endpoint, url.PathEscape(c.model), q.Encode())

	body, err := json.Marshal(map[string]string{
		"base64Source": base64.StdEncoding.EncodeToString(doc),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling document intelligence: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", statusError(resp, respBody)
	}

	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", fmt.Errorf("document intelligence response has no Operation-Location header")
	}
	return opLocation, nil
}

// operationStatus models the analyze operation resource.
type operationStatus struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ModelID string `json:"modelId"`
		Content string `json:"content"`
		Pages   []struct {
			PageNumber int `json:"pageNumber"`
		} `json:"pages"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) poll(ctx context.Context, opLocation string) (*operationStatus, error) {
	wait := c.pollInterval
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for analysis: %w", ctx.Err())
		case <-timer.C:
		}

		status, retryAfter, err := c.getStatus(ctx, opLocation)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(status.Status) {
		case "succeeded":
			return status, nil
		case "failed", "canceled":
			msg := status.Status
			if status.Error != nil {
				msg = fmt.Sprintf("%s: %s", status.Error.Code, status.Error.Message)
			}
			return nil, fmt.Errorf("document analysis %s", msg)
		}

		wait = c.pollInterval
		if retryAfter > wait {
			wait = retryAfter
		}
	}
}

func (c *Client) getStatus(ctx context.Context, opLocation string) (*operationStatus, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("polling document intelligence: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, statusError(resp, body)
	}

	var status operationStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling poll response: %w", err)
	}
	return &status, retryAfter(resp.Header), nil
}

func (c *Client) downloadPDF(ctx context.Context, modelID, resultID string) ([]byte, error) {
	q := url.Values{}
	q.Set("api-version", c.apiVersion)
	pdfURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s/analyzeResults/%s/pdf?%s",
		c.endpoint, url.PathEscape(modelID), url.PathEscape(resultID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating pdf request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading searchable pdf: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading searchable pdf: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, body)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("document intelligence returned an empty pdf")
	}
	return body, nil
}

// resultIDFromLocation extracts {resultId} from
// .../documentModels/{model}/analyzeResults/{resultId}?api-version=...
func resultIDFromLocation(opLocation string) (string, error) {
	u, err := url.Parse(opLocation)
	if err != nil {
		return "", fmt.Errorf("parsing Operation-Location: %w", err)
	}
	id := path.Base(u.Path)
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("no result id in Operation-Location %q", opLocation)
	}
	return id, nil
}

func statusError(resp *http.Response, body []byte) error {
	msg := string(body)
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return &domain.UpstreamError{
		Service:    serviceName,
		StatusCode: resp.StatusCode,
		Body:       msg,
		RetryAfter: retryAfter(resp.Header),
	}
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
