package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backend-theentity/internal/config"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	requestTimeout = 10 * time.Second
	maxTries       = 3
	// RecentLimit is how many activities a backfill pulls.
	RecentLimit = 30
)

var (
	ErrUnauthorized = errors.New("strava rejected the access token")
	ErrNotFound     = errors.New("strava activity not found")
)

// Activity is the subset of a Strava activity the game reads.
type Activity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	SportType string    `json:"sport_type"`
	Distance  float64   `json:"distance"`
	StartDate time.Time `json:"start_date"`
}

func (a Activity) IsRun() bool {
	return a.Type == "Run"
}

// Km converts the metre distance to kilometres rounded to two decimals.
func (a Activity) Km() float64 {
	return math.Round(a.Distance/1000*100) / 100
}

// Token is a refreshed OAuth token pair.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type Client struct {
	apiURL  string
	oauth   oauth2.Config
	http    *http.Client
	backoff func() backoff.BackOff
	tracer  trace.Tracer
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiURL: strings.TrimRight(cfg.StravaAPIURL, "/"),
		oauth: oauth2.Config{
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.StravaTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: &http.Client{Timeout: requestTimeout},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return b
		},
		tracer: otel.Tracer("backend-theentity/internal/strava"),
	}
}

// Activity fetches one activity by id.
func (c *Client) Activity(ctx context.Context, accessToken, id string) (Activity, error) {
	ctx, span := c.tracer.Start(ctx, "strava.Activity", trace.WithAttributes(attribute.String("strava.activity_id", id)))
	defer span.End()

	var a Activity
	err := c.get(ctx, accessToken, "/activities/"+url.PathEscape(id), &a)
	recordErr(span, err)
	return a, err
}

// RecentActivities lists the athlete's latest activities, newest first.
func (c *Client) RecentActivities(ctx context.Context, accessToken string, limit int) ([]Activity, error) {
	ctx, span := c.tracer.Start(ctx, "strava.RecentActivities", trace.WithAttributes(attribute.Int("strava.limit", limit)))
	defer span.End()

	var list []Activity
	err := c.get(ctx, accessToken, "/athlete/activities?per_page="+strconv.Itoa(limit), &list)
	recordErr(span, err)
	return list, err
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	ctx, span := c.tracer.Start(ctx, "strava.Refresh")
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := backoff.Retry(ctx, func() (*oauth2.Token, error) {
		tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
				return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrUnauthorized, err))
			}
			return nil, err
		}
		return tok, nil
	}, c.retryOptions()...)
	if err != nil {
		recordErr(span, err)
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}

	return Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, ExpiresAt: tok.Expiry}, nil
}

func (c *Client) retryOptions() []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(maxTries),
	}
}

// get performs an authenticated GET with bounded retry. 4xx responses are not
// retried.
func (c *Client) get(ctx context.Context, accessToken, path string, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return struct{}{}, backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode == http.StatusNotFound:
			return struct{}{}, backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return struct{}{}, fmt.Errorf("strava %s: status %d", path, resp.StatusCode)
		case resp.StatusCode >= 400:
			return struct{}{}, backoff.Permanent(fmt.Errorf("strava %s: status %d", path, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return struct{}{}, nil
	}, c.retryOptions()...)
	return err
}

func recordErr(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
