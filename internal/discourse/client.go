// Package discourse is a minimal authenticated client for the subset of the
// Discourse HTTP API this exporter needs: categories, the paginated latest
// topic list, single-topic detail and user profiles.
package discourse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Category is one forum category from /categories.json.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Topic is one raw topic record from a /latest.json page. Timestamps are kept
// as the raw strings the server sent; parsing happens during filtering.
type Topic struct {
	ID           int
	Title        string
	CategoryID   int
	CreatedAt    string
	PostsCount   int
	Views        int
	Creator      string
	LastPoster   string
	LastPostedAt string
}

// TopicDetail is the enrichment payload from /t/{id}.json.
type TopicDetail struct {
	Description  string
	LastPostedAt string
	LastPoster   string
	Participants []string
}

// User is a user profile from /u/{username}.json.
type User struct {
	Username     string
	RegisteredAt string
	PostCount    int
}

// StatusError reports a non-2xx response from an endpoint.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.Endpoint, e.Code)
}

// DecodeError reports a response body that was not the expected JSON shape.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("GET %s: decoding response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Client performs authenticated requests against one Discourse instance.
type Client struct {
	baseURL     string
	apiKey      string
	apiUsername string
	client      *http.Client
}

// New creates a client for the given instance. All requests share one
// http.Client with the given timeout.
func New(baseURL, apiKey, apiUsername string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		apiUsername: apiUsername,
		client:      &http.Client{Timeout: timeout},
	}
}

// getJSON performs an authenticated GET and decodes the response into v.
func (c *Client) getJSON(endpoint string, params url.Values, v any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", c.apiUsername)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// ListCategories fetches all categories.
func (c *Client) ListCategories() ([]Category, error) {
	var result struct {
		CategoryList struct {
			Categories []Category `json:"categories"`
		} `json:"category_list"`
	}

	if err := c.getJSON("/categories.json", nil, &result); err != nil {
		return nil, err
	}
	return result.CategoryList.Categories, nil
}

// ListTopics fetches one page of the latest-topics listing. An empty slice
// with nil error means the page exists but holds no topics; pagination is the
// caller's loop.
func (c *Client) ListTopics(page, perPage int) ([]Topic, error) {
	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}

	var result struct {
		Users []struct {
			ID       int    `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
		TopicList struct {
			Topics []struct {
				ID                 int    `json:"id"`
				Title              string `json:"title"`
				CategoryID         int    `json:"category_id"`
				CreatedAt          string `json:"created_at"`
				PostsCount         int    `json:"posts_count"`
				Views              int    `json:"views"`
				ViewsCount         int    `json:"views_count"`
				LastPostedAt       string `json:"last_posted_at"`
				LastPosterUsername string `json:"last_poster_username"`
				Posters            []struct {
					UserID      int    `json:"user_id"`
					Description string `json:"description"`
				} `json:"posters"`
			} `json:"topics"`
		} `json:"topic_list"`
	}

	if err := c.getJSON("/latest.json", params, &result); err != nil {
		return nil, err
	}

	usernames := make(map[int]string, len(result.Users))
	for _, u := range result.Users {
		usernames[u.ID] = u.Username
	}

	topics := make([]Topic, 0, len(result.TopicList.Topics))
	for _, t := range result.TopicList.Topics {
		views := t.Views
		if views == 0 {
			views = t.ViewsCount
		}

		// The first entry in posters is the topic creator.
		creator := ""
		if len(t.Posters) > 0 {
			creator = usernames[t.Posters[0].UserID]
		}

		topics = append(topics, Topic{
			ID:           t.ID,
			Title:        t.Title,
			CategoryID:   t.CategoryID,
			CreatedAt:    t.CreatedAt,
			PostsCount:   t.PostsCount,
			Views:        views,
			Creator:      creator,
			LastPoster:   t.LastPosterUsername,
			LastPostedAt: t.LastPostedAt,
		})
	}
	return topics, nil
}

// GetTopic fetches the detail record for one topic.
func (c *Client) GetTopic(id int) (*TopicDetail, error) {
	endpoint := fmt.Sprintf("/t/%d.json", id)

	var result struct {
		Excerpt      string `json:"excerpt"`
		LastPostedAt string `json:"last_posted_at"`
		Details      struct {
			LastPoster struct {
				Username string `json:"username"`
			} `json:"last_poster"`
			Participants []struct {
				Username string `json:"username"`
			} `json:"participants"`
		} `json:"details"`
	}

	if err := c.getJSON(endpoint, nil, &result); err != nil {
		return nil, err
	}

	detail := &TopicDetail{
		Description:  result.Excerpt,
		LastPostedAt: result.LastPostedAt,
		LastPoster:   result.Details.LastPoster.Username,
	}
	for _, p := range result.Details.Participants {
		if p.Username != "" {
			detail.Participants = append(detail.Participants, p.Username)
		}
	}
	return detail, nil
}

// GetUser fetches the public profile for a username.
func (c *Client) GetUser(username string) (*User, error) {
	endpoint := "/u/" + url.PathEscape(username) + ".json"

	var result struct {
		User struct {
			Username  string `json:"username"`
			CreatedAt string `json:"created_at"`
			PostCount int    `json:"post_count"`
		} `json:"user"`
	}

	if err := c.getJSON(endpoint, nil, &result); err != nil {
		return nil, err
	}

	return &User{
		Username:     result.User.Username,
		RegisteredAt: result.User.CreatedAt,
		PostCount:    result.User.PostCount,
	}, nil
}
