package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/tschwarz/discourse-export/internal/discourse"
	"github.com/tschwarz/discourse-export/internal/export"
	"github.com/tschwarz/discourse-export/internal/group"
)

var testCategories = []discourse.Category{
	{ID: 1, Name: "General"},
	{ID: 2, Name: "Support"},
}

func testTopics() []export.Topic {
	return []export.Topic{
		{
			ID:         12345,
			Title:      "How to use API",
			CategoryID: 1,
			CreatedAt:  "2024-01-01T10:00:00.000Z",
			PostsCount: 5,
			Views:      100,
			Creator:    "johndoe",
		},
		{
			ID:           12346,
			Title:        "Commas, quotes \"and\" newlines",
			CategoryID:   2,
			CreatedAt:    "2024-02-01T10:00:00.000Z",
			PostsCount:   2,
			Views:        50,
			Creator:      "janedoe",
			Description:  "Line one\nline two",
			LastPostedAt: "2024-02-03T10:00:00.000Z",
			UserDetail: &export.UserDetail{
				Username:     "janedoe",
				RegisteredAt: "2020-01-01T00:00:00.000Z",
				PostCount:    77,
			},
		},
	}
}

func TestRenderTextSections(t *testing.T) {
	topics := testTopics()
	out := string(RenderText(testCategories, topics, group.ByCategory(topics)))

	for _, want := range []string{
		"### Categories ###",
		"ID: 1, Name: General",
		"### Topics ###",
		"ID: 12345, Title: How to use API, Category: General, Posts: 5, Views: 100, User: johndoe, Created At: 2024-01-01T10:00:00.000Z",
		"### Topics Grouped by Category ###",
		"Category: General\nTopic IDs: 12345\nTotal Topics: 1",
		"Category: Support\nTopic IDs: 12346\nTotal Topics: 1",
		"User Details: janedoe | Registered At: 2020-01-01T00:00:00.000Z | Post Count: 77",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q\n---\n%s", want, out)
		}
	}

	// The first topic carries no enrichment; its block must not grow
	// optional lines.
	block := out[strings.Index(out, "ID: 12345"):strings.Index(out, "ID: 12346")]
	if strings.Contains(block, "Description:") || strings.Contains(block, "Last Posted At:") {
		t.Errorf("unexpected optional lines for unenriched topic:\n%s", block)
	}
}

func TestRenderTextUnknownCategory(t *testing.T) {
	topics := []export.Topic{{ID: 1, Title: "Orphan", CategoryID: 99, CreatedAt: "2024-01-01T00:00:00.000Z"}}
	out := string(RenderText(testCategories, topics, group.ByCategory(topics)))
	if !strings.Contains(out, "Category: Unknown Category") {
		t.Errorf("expected unresolved category label, got:\n%s", out)
	}
}

func TestRenderCSV(t *testing.T) {
	data, err := RenderCSV(testCategories, testTopics())
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d records", len(records))
	}

	header := records[0]
	if header[0] != "Topic ID" || header[9] != "User Details" {
		t.Errorf("unexpected header: %v", header)
	}

	plain := records[1]
	if plain[0] != "12345" || plain[2] != "General" {
		t.Errorf("unexpected first row: %v", plain)
	}
	// Absent optionals are empty cells, never placeholder text.
	if plain[7] != "" || plain[8] != "" || plain[9] != "" {
		t.Errorf("expected empty cells for absent fields, got %v", plain)
	}

	enriched := records[2]
	if enriched[1] != "Commas, quotes \"and\" newlines" {
		t.Errorf("title with commas and quotes mangled: %q", enriched[1])
	}
	if enriched[7] != "Line one\nline two" {
		t.Errorf("description with newline mangled: %q", enriched[7])
	}
	if !strings.Contains(enriched[9], "Username: janedoe") {
		t.Errorf("unexpected user details cell: %q", enriched[9])
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := RenderJSON(testTopics())
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(decoded))
	}

	if decoded[0]["id"] != float64(12345) {
		t.Errorf("unexpected first record: %v", decoded[0])
	}
	if decoded[0]["created_at"] != "2024-01-01T10:00:00.000Z" {
		t.Errorf("expected raw timestamp preserved, got %v", decoded[0]["created_at"])
	}
	// Absent optionals are omitted entirely.
	if _, ok := decoded[0]["description"]; ok {
		t.Error("expected absent description to be omitted")
	}
	if _, ok := decoded[1]["user_detail"]; !ok {
		t.Error("expected user_detail on the enriched record")
	}
}

func TestRenderJSONEmpty(t *testing.T) {
	data, err := RenderJSON(nil)
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected empty array, got %q", data)
	}
}

// The three renderers must describe the identical topic set in the identical
// order; none applies filtering of its own.
func TestRenderersAgreeOnTopicSet(t *testing.T) {
	topics := testTopics()
	groups := group.ByCategory(topics)

	var wantIDs []string
	for _, tp := range topics {
		wantIDs = append(wantIDs, strconv.Itoa(tp.ID))
	}

	text := string(RenderText(testCategories, topics, groups))
	for _, id := range wantIDs {
		if !strings.Contains(text, "ID: "+id+",") {
			t.Errorf("text report missing topic %s", id)
		}
	}

	csvData, err := RenderCSV(testCategories, topics)
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}
	records, _ := csv.NewReader(bytes.NewReader(csvData)).ReadAll()
	var csvIDs []string
	for _, r := range records[1:] {
		csvIDs = append(csvIDs, r[0])
	}

	jsonData, err := RenderJSON(topics)
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	var decoded []struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("decoding JSON report: %v", err)
	}
	var jsonIDs []string
	for _, d := range decoded {
		jsonIDs = append(jsonIDs, strconv.Itoa(d.ID))
	}

	if strings.Join(csvIDs, ",") != strings.Join(wantIDs, ",") {
		t.Errorf("CSV IDs %v differ from source %v", csvIDs, wantIDs)
	}
	if strings.Join(jsonIDs, ",") != strings.Join(wantIDs, ",") {
		t.Errorf("JSON IDs %v differ from source %v", jsonIDs, wantIDs)
	}
}

func TestRenderersAreDeterministic(t *testing.T) {
	topics := testTopics()
	groups := group.ByCategory(topics)

	csv1, err := RenderCSV(testCategories, topics)
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}
	csv2, _ := RenderCSV(testCategories, topics)
	if !bytes.Equal(csv1, csv2) {
		t.Error("CSV output differs between identical runs")
	}

	json1, err := RenderJSON(topics)
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	json2, _ := RenderJSON(topics)
	if !bytes.Equal(json1, json2) {
		t.Error("JSON output differs between identical runs")
	}

	text1 := RenderText(testCategories, topics, groups)
	text2 := RenderText(testCategories, topics, groups)
	if !bytes.Equal(text1, text2) {
		t.Error("text output differs between identical runs")
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	topics := testTopics()

	if err := WriteFiles(dir, testCategories, topics, group.ByCategory(topics)); err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}

	for _, name := range []string{TextFile, CSVFile, JSONFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("missing output file %s: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("output file %s is empty", name)
		}
	}
}

func TestWriteFilesOverwrites(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, TextFile)
	if err := os.WriteFile(stale, []byte("stale content"), 0o644); err != nil {
		t.Fatalf("seeding stale file: %v", err)
	}

	topics := testTopics()
	if err := WriteFiles(dir, testCategories, topics, group.ByCategory(topics)); err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}

	data, _ := os.ReadFile(stale)
	if strings.Contains(string(data), "stale content") {
		t.Error("expected stale file to be overwritten")
	}
}
