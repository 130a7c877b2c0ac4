package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/contactkeval/btc-iv-compare/internal/logger"
	"github.com/contactkeval/btc-iv-compare/internal/surface"
)

// DefaultInvestDefyURL is the InvestDEFY API root.
const DefaultInvestDefyURL = "https://api.investdefy.com"

// SurfaceResponse is the volatility-surface payload: two typed axes and a matrix whose
// rows follow the delta axis. Null cells decode to nil.
type SurfaceResponse struct {
	Data struct {
		X    surface.Axis  `json:"x"`
		Y    surface.Axis  `json:"y"`
		Data [][]*float64 `json:"data"`
	} `json:"data"`
}

// Grid validates the payload into a surface grid.
func (r SurfaceResponse) Grid() (*surface.Grid, error) {
	return surface.NewGrid(r.Data.X, r.Data.Y, r.Data.Data)
}

// InvestDefy implements SurfaceProvider against the InvestDEFY volatility-surface API.
type InvestDefy struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	// Asset is the surface underlying; BTC unless set.
	Asset string

	log *logger.Logger
}

// NewInvestDefy constructs an InvestDEFY client. An empty baseURL means DefaultInvestDefyURL.
func NewInvestDefy(baseURL, apiKey string, timeout time.Duration) *InvestDefy {
	if baseURL == "" {
		baseURL = DefaultInvestDefyURL
	}
	return &InvestDefy{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  newHTTPClient(timeout),
		Asset:   "BTC",
		log:     logger.With(zap.String("source", "investdefy")),
	}
}

// Surface fetches the delta x floating-tenor surface referenced to 08:00 UTC.
func (s *InvestDefy) Surface(ctx context.Context) (*surface.Grid, error) {
	q := url.Values{}
	q.Set("asset", s.Asset)
	q.Set("x_type", "delta")
	q.Set("y_type", "tenor-floating")
	q.Set("floating_ref", "8am-utc")

	reqURL := s.BaseURL + "/v1/data/volatility-surface?" + q.Encode()
	s.log.Tracef("request URL: %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("investdefy API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var dbg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &dbg)
		s.log.Errorf("surface API error status=%d message=%s", resp.StatusCode, dbg.Message)
		return nil, fmt.Errorf("investdefy returned status %d: %s", resp.StatusCode, dbg.Message)
	}

	var payload SurfaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode surface: %w", err)
	}

	g, err := payload.Grid()
	if err != nil {
		return nil, err
	}
	s.log.Debugf("surface %s x %s: %d rows", g.X.Type, g.Y.Type, len(g.Data))
	return g, nil
}
