package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPSource pulls triggers from the container-manager API: first the
// active topology, then that topology's triggers.
type HTTPSource struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type activeTopologyResponse struct {
	Active *struct {
		Name string `json:"name"`
	} `json:"active"`
}

type triggersResponse struct {
	Triggers []Row `json:"triggers"`
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]Row, error) {
	var active activeTopologyResponse
	if err := s.getJSON(ctx, s.baseURL+"/topologies/active", &active); err != nil {
		return nil, fmt.Errorf("fetching active topology: %w", err)
	}
	if active.Active == nil || active.Active.Name == "" {
		s.logger.Debug("no active topology for trigger sync")
		return nil, nil
	}

	var triggers triggersResponse
	url := fmt.Sprintf("%s/topologies/%s/triggers", s.baseURL, active.Active.Name)
	if err := s.getJSON(ctx, url, &triggers); err != nil {
		return nil, fmt.Errorf("fetching triggers for topology %s: %w", active.Active.Name, err)
	}

	return triggers.Triggers, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
