// ABOUTME: Lists installed models from /api/tags
// ABOUTME: Falls back to pattern extraction when the response is not the expected JSON

package ollama

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/tidwall/gjson"
)

// ModelList is the result of ListModels. Raw always holds the response body;
// Degraded is set when the names were recovered by pattern matching.
type ModelList struct {
	Models   []string
	Degraded bool
	Raw      string
}

var modelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`model='([^']+)'`),
	regexp.MustCompile(`"(?:name|model)"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`(?m)\bname:\s*([^\s,}\]]+)`),
}

// ListModels returns the names of the models installed on the server.
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading model list: %v", ErrUnreachable, err)
	}
	return parseModels(body), nil
}

func parseModels(body []byte) *ModelList {
	if gjson.ValidBytes(body) {
		if models := gjson.GetBytes(body, "models"); models.IsArray() {
			list := &ModelList{Models: []string{}, Raw: string(body)}
			models.ForEach(func(_, m gjson.Result) bool {
				name := m.Get("name").String()
				if name == "" {
					name = m.Get("model").String()
				}
				if name != "" {
					list.Models = append(list.Models, name)
				}
				return true
			})
			return list
		}
	}

	list := &ModelList{Models: []string{}, Degraded: true, Raw: string(body)}
	seen := make(map[string]bool)
	for _, re := range modelPatterns {
		for _, m := range re.FindAllSubmatch(body, -1) {
			name := string(m[1])
			if !seen[name] {
				seen[name] = true
				list.Models = append(list.Models, name)
			}
		}
	}
	return list
}
