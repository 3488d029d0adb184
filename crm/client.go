// ABOUTME: HTTP client for the CRM REST API
// ABOUTME: Paces requests, walks pagination cursors, and retries 429/5xx responses
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/restriden/simpli-immo-sub001/config"
)

// APIError is a non-2xx CRM response that survived the retry budget.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api error: status=%d message=%s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL      string
	version      string
	httpClient   *http.Client
	requestDelay time.Duration
	maxRetries   int
	retryBase    time.Duration
	retryMax     time.Duration

	mu          sync.Mutex
	nextRequest time.Time
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.CRMBaseURL, "/"),
		version:      cfg.CRMAPIVersion,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		requestDelay: cfg.RequestDelay,
		maxRetries:   3,
		retryBase:    200 * time.Millisecond,
		retryMax:     5 * time.Second,
	}
}

// ListContacts fetches every contact of a location, following the
// startAfterId cursor until the endpoint is exhausted.
func (c *Client) ListContacts(ctx context.Context, token, locationID string) ([]Contact, error) {
	var contacts []Contact
	cursor := ""

	for {
		query := url.Values{"locationId": {locationID}, "limit": {"100"}}
		if cursor != "" {
			query.Set("startAfterId", cursor)
		}

		var page contactsPage
		if err := c.do(ctx, token, http.MethodGet, "/contacts/", query, nil, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Contacts {
			var contact Contact
			if err := json.Unmarshal(raw, &contact); err != nil {
				return nil, fmt.Errorf("failed to decode contact: %w", err)
			}
			contact.Raw = raw
			contacts = append(contacts, contact)
		}

		if len(page.Contacts) == 0 || page.Meta.StartAfterID == "" || page.Meta.StartAfterID == cursor {
			break
		}
		cursor = page.Meta.StartAfterID
	}

	return contacts, nil
}

// SearchConversations fetches every conversation of a location.
func (c *Client) SearchConversations(ctx context.Context, token, locationID string) ([]Conversation, error) {
	var conversations []Conversation
	cursor := ""

	for {
		query := url.Values{"locationId": {locationID}, "limit": {"100"}}
		if cursor != "" {
			query.Set("startAfterId", cursor)
		}

		var page conversationsPage
		if err := c.do(ctx, token, http.MethodGet, "/conversations/search", query, nil, &page); err != nil {
			return nil, err
		}

		conversations = append(conversations, page.Conversations...)

		if len(page.Conversations) == 0 || page.Meta.StartAfterID == "" || page.Meta.StartAfterID == cursor {
			break
		}
		cursor = page.Meta.StartAfterID
	}

	return conversations, nil
}

// ListConversationMessages fetches one conversation's messages, following the
// lastMessageId cursor.
func (c *Client) ListConversationMessages(ctx context.Context, token, conversationID string) ([]Message, error) {
	var messages []Message
	cursor := ""

	for {
		query := url.Values{"limit": {"100"}}
		if cursor != "" {
			query.Set("lastMessageId", cursor)
		}

		var page messagesPage
		if err := c.do(ctx, token, http.MethodGet, "/conversations/"+conversationID+"/messages", query, nil, &page); err != nil {
			return nil, err
		}

		for _, message := range page.Messages.Messages {
			if message.ConversationID == "" {
				message.ConversationID = conversationID
			}
			messages = append(messages, message)
		}

		if !page.Messages.NextPage || page.Messages.LastMessageID == "" || page.Messages.LastMessageID == cursor {
			break
		}
		cursor = page.Messages.LastMessageID
	}

	return messages, nil
}

// ListContactTasks fetches one contact's tasks. The endpoint is not paginated.
func (c *Client) ListContactTasks(ctx context.Context, token, contactID string) ([]Task, error) {
	var envelope tasksEnvelope
	if err := c.do(ctx, token, http.MethodGet, "/contacts/"+contactID+"/tasks", nil, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Tasks, nil
}

// ListCalendarEvents fetches appointments in a time window. The CRM takes
// epoch milliseconds.
func (c *Client) ListCalendarEvents(ctx context.Context, token, locationID string, start, end time.Time) ([]CalendarEvent, error) {
	query := url.Values{
		"locationId": {locationID},
		"startTime":  {strconv.FormatInt(start.UnixMilli(), 10)},
		"endTime":    {strconv.FormatInt(end.UnixMilli(), 10)},
	}

	var envelope eventsEnvelope
	if err := c.do(ctx, token, http.MethodGet, "/calendars/events", query, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Events, nil
}

// ListPipelines fetches the location's pipelines with their stages.
func (c *Client) ListPipelines(ctx context.Context, token, locationID string) ([]Pipeline, error) {
	query := url.Values{"locationId": {locationID}}

	var envelope pipelinesEnvelope
	if err := c.do(ctx, token, http.MethodGet, "/opportunities/pipelines", query, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Pipelines, nil
}

// SearchOpportunities fetches every opportunity of a location. This endpoint
// takes location_id in snake case, unlike the rest of the API.
func (c *Client) SearchOpportunities(ctx context.Context, token, locationID string) ([]Opportunity, error) {
	var opportunities []Opportunity
	cursor := ""

	for {
		query := url.Values{"location_id": {locationID}, "limit": {"100"}}
		if cursor != "" {
			query.Set("startAfterId", cursor)
		}

		var page opportunitiesPage
		if err := c.do(ctx, token, http.MethodGet, "/opportunities/search", query, nil, &page); err != nil {
			return nil, err
		}

		opportunities = append(opportunities, page.Opportunities...)

		if len(page.Opportunities) == 0 || page.Meta.StartAfterID == "" || page.Meta.StartAfterID == cursor {
			break
		}
		cursor = page.Meta.StartAfterID
	}

	return opportunities, nil
}

// SendMessage sends an outbound message to a contact and returns the new
// message's external id.
func (c *Client) SendMessage(ctx context.Context, token, contactID, messageType, body string) (string, error) {
	if messageType == "" {
		messageType = "SMS"
	}

	payload := sendMessageRequest{Type: messageType, ContactID: contactID, Message: body}
	var resp sendMessageResponse
	if err := c.do(ctx, token, http.MethodPost, "/conversations/messages", nil, payload, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// CompleteTask marks a contact's task done in the CRM.
func (c *Client) CompleteTask(ctx context.Context, token, contactID, taskID string) error {
	payload := map[string]bool{"completed": true}
	return c.do(ctx, token, http.MethodPut, "/contacts/"+contactID+"/tasks/"+taskID+"/completed", nil, payload, nil)
}

// RegisterWebhook subscribes the given callback URL to the location's events.
func (c *Client) RegisterWebhook(ctx context.Context, token, locationID, callbackURL string, events []string) error {
	payload := webhookSubscription{LocationID: locationID, URL: callbackURL, Events: events}
	return c.do(ctx, token, http.MethodPost, "/webhooks/", nil, payload, nil)
}

// do issues one API request with the bearer token and Version header, pacing
// requests by the configured delay and retrying 429/5xx with backoff.
func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, payload, out any) error {
	var bodyBytes []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyBytes = b
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.throttle(ctx); err != nil {
			return err
		}

		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Version", c.version)
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode CRM response: %w", err)
			}
			return nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}
}

// throttle reserves the next request slot so that consecutive requests,
// including concurrent ones, stay requestDelay apart.
func (c *Client) throttle(ctx context.Context) error {
	if c.requestDelay <= 0 {
		return nil
	}

	c.mu.Lock()
	now := time.Now()
	slot := c.nextRequest
	if slot.Before(now) {
		slot = now
	}
	c.nextRequest = slot.Add(c.requestDelay)
	c.mu.Unlock()

	return sleepContext(ctx, slot.Sub(now))
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.retryMax {
			return c.retryMax
		}
		return retryAfter
	}

	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.retryMax {
			return c.retryMax
		}
	}
	if delay > c.retryMax {
		return c.retryMax
	}
	return delay
}

func apiErrorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
