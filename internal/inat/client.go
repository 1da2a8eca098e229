package inat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/logging"
)

// PageHandler consumes one page of decoded observations. Returning an
// error aborts the fetch run; pages already handled stay ingested.
type PageHandler func(ctx context.Context, observations []Observation) error

// Client fetches observations from the remote API. Page requests are
// read-only and idempotent; a run issues at most one request at a
// time, so back-pressure is implicit.
type Client struct {
	baseURL    string
	perPage    int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the observation endpoint.
func NewClient(baseURL string, perPage int, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		perPage: perPage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.ForService("inat"),
	}
}

// FetchAll walks every page of the user's observations, most recently
// observed first, passing each decoded page to handler.
func (c *Client) FetchAll(ctx context.Context, login string, handler PageHandler) error {
	query := url.Values{}
	query.Set("fields", ObservationFields)
	query.Set("per_page", strconv.Itoa(c.perPage))
	query.Set("order_by", "observed_on")
	query.Set("order", "desc")
	query.Set("user_id", login)

	return c.fetchPages(ctx, query, handler)
}

// FetchNewer walks pages of the user's observations with ids above the
// given watermark, ascending by id, passing each decoded page to
// handler. A failed run can safely be re-invoked from the last
// committed watermark because ingestion is idempotent.
func (c *Client) FetchNewer(ctx context.Context, login string, idAbove int64, handler PageHandler) error {
	query := url.Values{}
	query.Set("fields", ObservationFields)
	query.Set("per_page", strconv.Itoa(c.perPage))
	query.Set("order_by", "id")
	query.Set("order", "asc")
	query.Set("id_above", strconv.FormatInt(idAbove, 10))
	query.Set("user_id", login)

	return c.fetchPages(ctx, query, handler)
}

// fetchPages advances a page-number cursor until the server reports no
// further pages. The loop is bounded: it stops whenever the reported
// next page does not advance, so a misbehaving server cannot spin it
// indefinitely.
func (c *Client) fetchPages(ctx context.Context, query url.Values, handler PageHandler) error {
	start := time.Now()
	pages := 0
	records := 0

	pageNum := 1
	for {
		query.Set("page", strconv.Itoa(pageNum))

		page, err := c.fetchPage(ctx, query)
		if err != nil {
			return err
		}
		pages++
		records += len(page.Results)

		if err := handler(ctx, page.Results); err != nil {
			return err
		}

		next, ok := page.NextPage()
		if !ok || next <= pageNum {
			break
		}
		pageNum = next
	}

	c.logger.Info("fetch run complete",
		"pages", pages,
		"records", records,
		"elapsed", time.Since(start))
	return nil
}

// fetchPage performs a single page request with strict response
// validation. Any transport, protocol or decode problem is fatal to
// the current run.
func (c *Client) fetchPage(ctx context.Context, query url.Values) (*Page, error) {
	reqURL := c.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("inat").
			Category(errors.CategoryValidation).
			Context("url", reqURL).
			Build()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Newf("fetching page: %w", err).
			Component("inat").
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("closing response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("unexpected status %s", resp.Status).
			Component("inat").
			Category(errors.CategoryHTTP).
			Context("url", reqURL).
			Context("status_code", resp.StatusCode).
			Build()
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		return nil, errors.Newf("unexpected content type %q", contentType).
			Component("inat").
			Category(errors.CategoryHTTP).
			Context("url", reqURL).
			Build()
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Newf("decoding page: %w", err).
			Component("inat").
			Category(errors.CategoryJSONParsing).
			Context("url", reqURL).
			Build()
	}

	c.logger.Debug("fetched page",
		"page", page.Page,
		"results", len(page.Results),
		"total_results", page.TotalResults)
	return &page, nil
}

// LoadPageFile decodes a saved page document, as used by tests and the
// sync command's fixture mode.
func LoadPageFile(data []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decoding page document: %w", err)
	}
	return &page, nil
}
