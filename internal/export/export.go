// Package export aggregates Discourse topics for one run: it paginates the
// topic listing, applies the configured date and keyword filters, and enriches
// surviving topics with the optional detail fetches.
package export

import (
	"log"
	"strings"
	"time"

	"github.com/tschwarz/discourse-export/internal/config"
	"github.com/tschwarz/discourse-export/internal/discourse"
)

// API is the slice of the Discourse client the aggregator uses.
type API interface {
	ListCategories() ([]discourse.Category, error)
	ListTopics(page, perPage int) ([]discourse.Topic, error)
	GetTopic(id int) (*discourse.TopicDetail, error)
	GetUser(username string) (*discourse.User, error)
}

// UserDetail is the last poster's profile, fetched when user-detail
// enrichment is on.
type UserDetail struct {
	Username     string `json:"username"`
	RegisteredAt string `json:"registered_at"`
	PostCount    int    `json:"post_count"`
}

// Topic is one exported topic: the raw listing fields plus whichever optional
// enrichment fields the run was configured to fetch. Absent optionals stay
// zero and are omitted from structured output.
type Topic struct {
	ID            int         `json:"id"`
	Title         string      `json:"title"`
	CategoryID    int         `json:"category_id"`
	CreatedAt     string      `json:"created_at"`
	PostsCount    int         `json:"posts_count"`
	Views         int         `json:"views"`
	Creator       string      `json:"creator"`
	Description   string      `json:"description,omitempty"`
	LastPostedAt  string      `json:"last_posted_at,omitempty"`
	RecentPosters []string    `json:"recent_posters,omitempty"`
	UserDetail    *UserDetail `json:"user_detail,omitempty"`

	// lastPoster feeds the user-detail fetch; it is not an output field
	// of its own.
	lastPoster string
}

// Stats holds run counters for progress reporting.
type Stats struct {
	PagesFetched     int
	TopicsSeen       int
	TopicsKept       int
	Excluded         int
	InvalidDates     int
	EnrichmentErrors int
}

// Result is the aggregated output of one run.
type Result struct {
	Categories []discourse.Category
	Topics     []Topic
	Stats      Stats
}

// Aggregator drives pagination, filtering and enrichment for one run.
type Aggregator struct {
	api API
	cfg *config.Config
}

// New creates an aggregator.
func New(api API, cfg *config.Config) *Aggregator {
	return &Aggregator{api: api, cfg: cfg}
}

// Run performs the full aggregation. It fails only when the categories fetch
// fails; every later error is logged and degrades to partial data.
func (a *Aggregator) Run() (*Result, error) {
	categories, err := a.api.ListCategories()
	if err != nil {
		return nil, err
	}
	log.Printf("Fetched %d categories", len(categories))

	result := &Result{Categories: categories}

	raw := a.collectTopics(&result.Stats)
	kept := a.filterTopics(raw, &result.Stats)

	for i := range kept {
		a.enrich(&kept[i], &result.Stats)
	}
	result.Topics = kept
	result.Stats.TopicsKept = len(kept)

	log.Printf("Aggregation complete: %d topics seen, %d kept, %d excluded",
		result.Stats.TopicsSeen, result.Stats.TopicsKept, result.Stats.Excluded)
	return result, nil
}

// collectTopics paginates /latest.json until the server runs out of topics.
// Discourse repeats the final page instead of returning an empty one, so a
// page with no unseen topic IDs also terminates the loop. A failed page fetch
// halts pagination and keeps what was already collected.
func (a *Aggregator) collectTopics(stats *Stats) []discourse.Topic {
	var raw []discourse.Topic
	seen := make(map[int]struct{})

	for page := 0; ; page++ {
		topics, err := a.api.ListTopics(page, a.cfg.HTTP.PageSize)
		if err != nil {
			log.Printf("Failed to fetch topic page %d: %v (stopping pagination)", page, err)
			break
		}
		if len(topics) == 0 {
			break
		}

		unseen := 0
		for _, t := range topics {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			raw = append(raw, t)
			unseen++
		}
		if unseen == 0 {
			break
		}

		stats.PagesFetched++
		log.Printf("Fetched page %d: %d topics", page+1, len(topics))
	}

	stats.TopicsSeen = len(raw)
	return raw
}

// filterTopics applies the date-range and keyword filters, in server order.
// Filtering runs before any enrichment call so excluded topics never cost
// extra requests.
func (a *Aggregator) filterTopics(raw []discourse.Topic, stats *Stats) []Topic {
	keyword := strings.ToLower(a.cfg.Filter.Keyword)

	var kept []Topic
	for _, t := range raw {
		createdAt, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			log.Printf("Topic %d: unparseable created_at %q, excluding", t.ID, t.CreatedAt)
			stats.InvalidDates++
			stats.Excluded++
			continue
		}
		if createdAt.Before(a.cfg.StartDate) || createdAt.After(a.cfg.EndDate) {
			stats.Excluded++
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(t.Title), keyword) {
			stats.Excluded++
			continue
		}

		topic := Topic{
			ID:         t.ID,
			Title:      t.Title,
			CategoryID: t.CategoryID,
			CreatedAt:  t.CreatedAt,
			PostsCount: t.PostsCount,
			Views:      t.Views,
			Creator:    t.Creator,
			lastPoster: t.LastPoster,
		}
		// The listing already carries last_posted_at; keep it only when
		// the toggle asked for it so disabled toggles never surface data.
		if a.cfg.Fetch.LastPostedAt {
			topic.LastPostedAt = t.LastPostedAt
		}
		kept = append(kept, topic)
	}
	return kept
}

// enrich runs the enabled enrichment steps for one topic. Each step degrades
// to an absent field on failure; a failure never drops the topic.
func (a *Aggregator) enrich(t *Topic, stats *Stats) {
	fetch := a.cfg.Fetch

	if fetch.TopicDescription || fetch.LastPostedAt || fetch.Posts {
		detail, err := a.api.GetTopic(t.ID)
		if err != nil {
			log.Printf("Topic %d: detail fetch failed: %v", t.ID, err)
			stats.EnrichmentErrors++
		} else {
			if fetch.TopicDescription {
				t.Description = detail.Description
			}
			if fetch.LastPostedAt && detail.LastPostedAt != "" {
				t.LastPostedAt = detail.LastPostedAt
			}
			if fetch.Posts {
				t.RecentPosters = detail.Participants
			}
			if t.lastPoster == "" {
				t.lastPoster = detail.LastPoster
			}
		}
	}

	// A topic with no posts has no last poster; skip the profile call
	// rather than requesting an empty username.
	if fetch.UserDetails && t.lastPoster != "" {
		user, err := a.api.GetUser(t.lastPoster)
		if err != nil {
			log.Printf("Topic %d: user fetch for %q failed: %v", t.ID, t.lastPoster, err)
			stats.EnrichmentErrors++
		} else {
			t.UserDetail = &UserDetail{
				Username:     user.Username,
				RegisteredAt: user.RegisteredAt,
				PostCount:    user.PostCount,
			}
		}
	}
}
