package payload

import (
	"strings"
	"testing"
)

func TestExtractBlocks_TwoDistinctBlocks(t *testing.T) {
	markup := `<html><script type="application/json">{"require":[["x",{"thread_items":[{"post":{"code":"AAA","caption":{"text":"first"}}}]}]]}</script>
<div>noise [ { ] }</div>
<script>{"thread_items":[{"post":{"code":"BBB","caption":{"text":"second"}}}]}</script></html>`

	frags := ExtractBlocks(markup, "thread_items", "code")
	if len(frags) != 2 {
		t.Fatalf("len(frags) = %d, want 2", len(frags))
	}
	if frags[0].ID != "AAA" || frags[1].ID != "BBB" {
		t.Errorf("IDs = %q, %q; want AAA, BBB", frags[0].ID, frags[1].ID)
	}
	if frags[0].Offset >= frags[1].Offset {
		t.Error("fragments should be in document order")
	}

	var items []struct {
		Post struct {
			Code string `json:"code"`
		} `json:"post"`
	}
	if err := frags[1].Decode(&items); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(items) != 1 || items[0].Post.Code != "BBB" {
		t.Errorf("decoded items = %+v", items)
	}
}

func TestExtractBlocks_DeduplicatesByID(t *testing.T) {
	markup := `{"thread_items":[{"post":{"code":"AAA","n":1}}]} ... {"thread_items":[{"post":{"code":"AAA","n":2}}]}`

	frags := ExtractBlocks(markup, "thread_items", "code")
	if len(frags) != 1 {
		t.Fatalf("len(frags) = %d, want 1", len(frags))
	}
	if !strings.Contains(string(frags[0].Raw), `"n":1`) {
		t.Errorf("kept fragment = %s, want the first occurrence", frags[0].Raw)
	}
}

func TestExtractBlocks_UnbalancedBlockDoesNotHideOthers(t *testing.T) {
	markup := `<script>{"thread_items":[{"post":{"code":"BROKEN","caption":{"text":"cut off"</script>
<script>{"thread_items":[{"post":{"code":"GOOD","caption":{"text":"ok"}}}]}</script>`

	frags := ExtractBlocks(markup, "thread_items", "code")
	if len(frags) != 1 {
		t.Fatalf("len(frags) = %d, want 1", len(frags))
	}
	if frags[0].ID != "GOOD" {
		t.Errorf("ID = %q, want GOOD", frags[0].ID)
	}
}

func TestExtractBlocks_InvalidJSONSkipped(t *testing.T) {
	markup := `{"thread_items":[{"post":{"code":"X",}}]} {"thread_items":[{"post":{"code":"Y"}}]}`

	frags := ExtractBlocks(markup, "thread_items", "code")
	if len(frags) != 1 || frags[0].ID != "Y" {
		t.Fatalf("frags = %+v, want only Y", frags)
	}
}

func TestExtractBlocks_BracketsInsideStrings(t *testing.T) {
	markup := `{"thread_items":[{"post":{"code":"Q1","caption":{"text":"smile :] and {braces} and \"quoted [\" text"}}}]}`

	frags := ExtractBlocks(markup, "thread_items", "code")
	if len(frags) != 1 {
		t.Fatalf("len(frags) = %d, want 1", len(frags))
	}
	if !strings.HasSuffix(string(frags[0].Raw), "}}}]") {
		t.Errorf("Raw = %s, should end at the array close", frags[0].Raw)
	}
}

func TestExtractBlocks_AnchorNotAField(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"value string", `{"label":"thread_items","other":1}`},
		{"escaped in string", `{"data":"{\"thread_items\":[{\"code\":\"Z\"}]}"}`},
		{"followed by scalar", `{"thread_items":42}`},
		{"followed by quote", `{"thread_items":"[not a block]"}`},
		{"absent", `<html><body>nothing here</body></html>`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := ExtractBlocks(tt.markup, "thread_items", "code")
			if len(frags) != 0 {
				t.Errorf("len(frags) = %d, want 0: %+v", len(frags), frags)
			}
		})
	}
}

func TestExtractBlocks_WhitespaceAroundColon(t *testing.T) {
	markup := "{\"thread_items\" :\n [ {\"code\": \"W\"} ]}"

	frags := ExtractBlocks(markup, "thread_items", "code")
	if len(frags) != 1 || frags[0].ID != "W" {
		t.Fatalf("frags = %+v, want one fragment W", frags)
	}
}

func TestExtractBlocks_NoIDFieldKeepsAll(t *testing.T) {
	markup := `{"thread_items":[1]} {"thread_items":[1]}`

	if got := len(ExtractBlocks(markup, "thread_items", "code")); got != 2 {
		t.Errorf("with missing id field: len = %d, want 2", got)
	}
	if got := len(ExtractBlocks(markup, "thread_items", "")); got != 2 {
		t.Errorf("without id field: len = %d, want 2", got)
	}
}

func TestFindField(t *testing.T) {
	value := map[string]any{
		"post": map[string]any{
			"code": "OWN",
			"text_post_app_info": map[string]any{
				"share_info": map[string]any{
					"quoted_post": map[string]any{"code": "QUOTED"},
				},
			},
		},
	}

	if got := FindField(value, "code"); got != "OWN" {
		t.Errorf("FindField() = %q, want OWN", got)
	}
	if got := FindField(value, "missing"); got != "" {
		t.Errorf("FindField(missing) = %q, want empty", got)
	}
	if got := FindField([]any{map[string]any{"pk": 12.0}}, "pk"); got != "12" {
		t.Errorf("FindField(pk) = %q, want 12", got)
	}
}
