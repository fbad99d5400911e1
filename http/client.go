package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
)

// StatusError is returned when a remote event source answers with a non
// success status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d", e.Endpoint, e.StatusCode)
}

// EventClient asks another service's events endpoint for events.
type EventClient struct {
	url    string
	client *http.Client
}

func NewEventClient(url string, client *http.Client) *EventClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &EventClient{url: strings.TrimRight(url, "/"), client: client}
}

// RemoteSource dials every requester url through client.
func RemoteSource(client *http.Client) ddd.RemoteSource {
	return func(url string) ddd.EventSource {
		return NewEventClient(url, client)
	}
}

// EventsOf posts the ids as a JSON array to the url, with the point in time
// appended as a path segment when asOf is set.
func (c *EventClient) EventsOf(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]ddd.Event, error) {
	endpoint := c.url
	if asOf != nil {
		endpoint += "/" + asOf.UTC().Format(time.RFC3339Nano)
	}

	body, err := json.Marshal(aggregateRootIDs)
	if err != nil {
		return nil, fmt.Errorf("encode ids: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, &StatusError{Endpoint: endpoint, StatusCode: response.StatusCode}
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s: %w", endpoint, err)
	}
	events, err := ddd.EventsFromJson(data)
	if err != nil {
		return nil, fmt.Errorf("decode response of %s: %w", endpoint, err)
	}
	return events, nil
}
