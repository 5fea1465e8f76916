// Package catalog reads priced service listings from the marketplace catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
)

// HTTPClient fetches listings from the catalog service
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a client for the catalog service at baseURL
func NewHTTPClient(baseURL string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// GetListing handles GET {baseURL}/api/services/{id}
func (c *HTTPClient) GetListing(ctx context.Context, serviceID string) (*model.Listing, error) {
	endpoint := fmt.Sprintf("%s/api/services/%s", c.baseURL, url.PathEscape(serviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Catalog request failed", zap.String("service_id", serviceID), zap.Error(err))
		return nil, fmt.Errorf("failed to call catalog: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: service %s", model.ErrNotFound, serviceID)
	default:
		return nil, fmt.Errorf("catalog returned status %d for service %s", resp.StatusCode, serviceID)
	}

	var listing model.Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode listing %s: %w", serviceID, err)
	}
	if listing.ServiceID == "" {
		listing.ServiceID = serviceID
	}
	return &listing, nil
}

// Static serves listings from memory, for local runs and tests
type Static struct {
	mu       sync.RWMutex
	listings map[string]model.Listing
}

func NewStatic(listings ...model.Listing) *Static {
	s := &Static{listings: make(map[string]model.Listing, len(listings))}
	for _, listing := range listings {
		s.listings[listing.ServiceID] = listing
	}
	return s
}

// LoadFile reads a JSON array of listings
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var listings []model.Listing
	if err := json.Unmarshal(raw, &listings); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	for _, listing := range listings {
		if listing.ServiceID == "" {
			return nil, errors.New("catalog file has a listing without id")
		}
	}
	return NewStatic(listings...), nil
}

// Put adds or replaces a listing
func (s *Static) Put(listing model.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.ServiceID] = listing
}

func (s *Static) GetListing(_ context.Context, serviceID string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[serviceID]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", model.ErrNotFound, serviceID)
	}
	listing.Extras = append([]model.Extra(nil), listing.Extras...)
	return &listing, nil
}
