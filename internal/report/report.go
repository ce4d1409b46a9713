// Package report renders one export run into the three output formats. The
// renderers are pure functions over the same (categories, topics, groups)
// triple; all filtering happened upstream, so the three files always describe
// the identical topic set.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tschwarz/discourse-export/internal/discourse"
	"github.com/tschwarz/discourse-export/internal/export"
	"github.com/tschwarz/discourse-export/internal/group"
)

// Output filenames, fixed relative to the output directory.
const (
	TextFile = "topics_and_categories.txt"
	CSVFile  = "topics_and_categories.csv"
	JSONFile = "topics_and_categories.json"
)

const unknownCategory = "Unknown Category"

// categoryNames builds the id -> name lookup. Topics referencing a category
// missing from the fetched set render under an unresolved label.
func categoryNames(categories []discourse.Category) map[int]string {
	names := make(map[int]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

func categoryName(names map[int]string, id int) string {
	if name, ok := names[id]; ok {
		return name
	}
	return unknownCategory
}

// RenderText renders the plain-text report: a categories section, a per-topic
// section with present-only optional lines, and the grouped-by-category
// breakdown.
func RenderText(categories []discourse.Category, topics []export.Topic, groups []group.Group) []byte {
	names := categoryNames(categories)
	var b strings.Builder

	b.WriteString("### Categories ###\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "ID: %d, Name: %s\n", c.ID, c.Name)
	}

	b.WriteString("\n### Topics ###\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "ID: %d, Title: %s, Category: %s, Posts: %d, Views: %d, User: %s, Created At: %s\n",
			t.ID, t.Title, categoryName(names, t.CategoryID), t.PostsCount, t.Views, t.Creator, t.CreatedAt)
		if t.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", t.Description)
		}
		if t.LastPostedAt != "" {
			fmt.Fprintf(&b, "Last Posted At: %s\n", t.LastPostedAt)
		}
		if len(t.RecentPosters) > 0 {
			fmt.Fprintf(&b, "Recent Posters: %s\n", strings.Join(t.RecentPosters, ", "))
		}
		if t.UserDetail != nil {
			fmt.Fprintf(&b, "User Details: %s | Registered At: %s | Post Count: %d\n",
				t.UserDetail.Username, t.UserDetail.RegisteredAt, t.UserDetail.PostCount)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n### Topics Grouped by Category ###\n")
	for _, g := range groups {
		ids := make([]string, len(g.TopicIDs))
		for i, id := range g.TopicIDs {
			ids[i] = strconv.Itoa(id)
		}
		fmt.Fprintf(&b, "Category: %s\n", categoryName(names, g.CategoryID))
		fmt.Fprintf(&b, "Topic IDs: %s\n", strings.Join(ids, ", "))
		fmt.Fprintf(&b, "Total Topics: %d\n\n", g.Count)
	}

	return []byte(b.String())
}

// RenderCSV renders the tabular report. Absent optional fields are empty
// cells; encoding/csv handles quoting of commas and newlines.
func RenderCSV(categories []discourse.Category, topics []export.Topic) ([]byte, error) {
	names := categoryNames(categories)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"Topic ID", "Title", "Category", "Post Count", "Views",
		"User", "Created At", "Description", "Last Posted At", "User Details",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, t := range topics {
		userDetails := ""
		if t.UserDetail != nil {
			userDetails = fmt.Sprintf("Username: %s, Registered At: %s, Posts: %d",
				t.UserDetail.Username, t.UserDetail.RegisteredAt, t.UserDetail.PostCount)
		}

		row := []string{
			strconv.Itoa(t.ID),
			t.Title,
			categoryName(names, t.CategoryID),
			strconv.Itoa(t.PostsCount),
			strconv.Itoa(t.Views),
			t.Creator,
			t.CreatedAt,
			t.Description,
			t.LastPostedAt,
			userDetails,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderJSON renders the structured report: one record per topic with all
// fetched fields verbatim, in aggregation order.
func RenderJSON(topics []export.Topic) ([]byte, error) {
	// An empty run still produces a valid empty array.
	if topics == nil {
		topics = []export.Topic{}
	}
	data, err := json.MarshalIndent(topics, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteFiles renders and writes all three reports into dir. Each write is
// independent: a failure is logged and reported, but never prevents the other
// files from being written.
func WriteFiles(dir string, categories []discourse.Category, topics []export.Topic, groups []group.Group) error {
	var firstErr error
	record := func(name string, err error) {
		log.Printf("Failed to write %s: %v", name, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("writing %s: %w", name, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, TextFile), RenderText(categories, topics, groups), 0o644); err != nil {
		record(TextFile, err)
	} else {
		log.Printf("Wrote %s", filepath.Join(dir, TextFile))
	}

	csvData, err := RenderCSV(categories, topics)
	if err != nil {
		record(CSVFile, err)
	} else if err := os.WriteFile(filepath.Join(dir, CSVFile), csvData, 0o644); err != nil {
		record(CSVFile, err)
	} else {
		log.Printf("Wrote %s", filepath.Join(dir, CSVFile))
	}

	jsonData, err := RenderJSON(topics)
	if err != nil {
		record(JSONFile, err)
	} else if err := os.WriteFile(filepath.Join(dir, JSONFile), jsonData, 0o644); err != nil {
		record(JSONFile, err)
	} else {
		log.Printf("Wrote %s", filepath.Join(dir, JSONFile))
	}

	return firstErr
}
