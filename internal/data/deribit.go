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
)

// DefaultDeribitURL is the public Deribit v2 API root.
const DefaultDeribitURL = "https://www.deribit.com/api/v2"

// Deribit implements ExchangeProvider against the public Deribit REST API.
type Deribit struct {
	// BaseURL is the API root (e.g., https://www.deribit.com/api/v2).
	BaseURL string

	// Client is the HTTP client used to make API requests.
	Client *http.Client

	log *logger.Logger
}

// deribitEnvelope is the JSON-RPC wrapper around every Deribit response.
type deribitEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewDeribit constructs a Deribit client. An empty baseURL means DefaultDeribitURL.
func NewDeribit(baseURL string, timeout time.Duration) *Deribit {
	if baseURL == "" {
		baseURL = DefaultDeribitURL
	}
	return &Deribit{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  newHTTPClient(timeout),
		log:     logger.With(zap.String("source", "deribit")),
	}
}

// Instruments lists the unexpired options of currency.
func (d *Deribit) Instruments(ctx context.Context, currency string) ([]Instrument, error) {
	q := url.Values{}
	q.Set("currency", currency)
	q.Set("kind", "option")
	q.Set("expired", "false")

	var out []Instrument
	if err := d.get(ctx, "/public/get_instruments", q, &out); err != nil {
		return nil, fmt.Errorf("deribit instruments %s: %w", currency, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no %s options listed", ErrMissingData, currency)
	}

	d.log.Debugf("received %d instruments", len(out))
	return out, nil
}

// Ticker returns the mark data of one instrument.
func (d *Deribit) Ticker(ctx context.Context, name string) (Ticker, error) {
	q := url.Values{}
	q.Set("instrument_name", name)

	var t Ticker
	if err := d.get(ctx, "/public/ticker", q, &t); err != nil {
		return Ticker{}, err
	}
	return t, nil
}

// get performs one GET and decodes the envelope's result into out.
func (d *Deribit) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	reqURL := d.BaseURL + endpoint + "?" + q.Encode()
	d.log.Tracef("request URL: %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deribit API error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env deribitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("deribit API status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("decode: %w", err)
	}
	if env.Error != nil {
		return fmt.Errorf("deribit API status %d: %s (code %d)", resp.StatusCode, env.Error.Message, env.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deribit API status %d: %s", resp.StatusCode, string(body))
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("deribit API: empty result")
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
