package kie

import (
	"encoding/json"
	"strings"
)

// resultPayload covers the shapes the provider has been observed to return
// for a finished task. Different model families populate different fields.
type resultPayload struct {
	ResultURLs []string `json:"resultUrls"`
	Image      string   `json:"image"`
	ImageURL   string   `json:"imageUrl"`
}

// extractResultURLs pulls asset URLs out of a task record. resultJson is a
// JSON string, response a raw object; either may carry the payload. The
// lookup order is resultUrls, then image, then imageUrl, matching how the
// provider degrades for older models.
func extractResultURLs(resultJSON string, response json.RawMessage) []string {
	if urls := decodeResultURLs([]byte(resultJSON)); len(urls) > 0 {
		return urls
	}
	return decodeResultURLs(response)
}

func decodeResultURLs(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var payload resultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Some responses double-encode the payload as a JSON string.
		var nested string
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil
		}
		return decodeResultURLs([]byte(nested))
	}

	urls := make([]string, 0, len(payload.ResultURLs))
	for _, u := range payload.ResultURLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) > 0 {
		return urls
	}
	if u := strings.TrimSpace(payload.Image); u != "" {
		return []string{u}
	}
	if u := strings.TrimSpace(payload.ImageURL); u != "" {
		return []string{u}
	}
	return nil
}
