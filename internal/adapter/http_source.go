package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/types"
)

// HTTPSource fetches normalized metadata from the internal provider gateway,
// the service that holds the user's OAuth tokens and talks to the mailbox and
// calendar APIs. Responses carry metadata only; bodies and subjects are
// stripped gateway-side.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a gateway-backed metadata source
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type emailEnvelope struct {
	Messages []EmailRecord `json:"messages"`
}

type eventEnvelope struct {
	Events []EventRecord `json:"events"`
}

// FetchEmail returns email metadata records within the window
func (s *HTTPSource) FetchEmail(ctx context.Context, userID string, window types.Window) ([]EmailRecord, error) {
	var envelope emailEnvelope
	if err := s.get(ctx, "/v1/email/metadata", userID, window, types.SourceEmail, &envelope); err != nil {
		return nil, err
	}
	return envelope.Messages, nil
}

// FetchEvents returns event metadata records within the window
func (s *HTTPSource) FetchEvents(ctx context.Context, userID string, window types.Window) ([]EventRecord, error) {
	var envelope eventEnvelope
	if err := s.get(ctx, "/v1/calendar/metadata", userID, window, types.SourceCalendar, &envelope); err != nil {
		return nil, err
	}
	return envelope.Events, nil
}

// get performs one gateway request. 403 means the user's token lacks the
// scope for this source; any other non-2xx response is a hard source failure.
func (s *HTTPSource) get(ctx context.Context, path string, userID string, window types.Window, source types.Source, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", s.baseURL, path, url.Values{
		"user_id": {userID},
		"from":    {strconv.FormatInt(window.Start.Unix(), 10)},
		"to":      {strconv.FormatInt(window.End.Unix(), 10)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperrors.NewSourceError(source, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewSourceError(source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.NewScopeMissingError(source)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.NewSourceError(source, fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewSourceError(source, fmt.Errorf("decode gateway response: %w", err))
	}

	return nil
}
