// Package search provides the web search tool the research agent uses.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ToolName          = "serper_search"
	defaultSerperURL  = "https://google.serper.dev/search"
	defaultMaxResults = 5
)

// Serper queries the Serper Google search API.
type Serper struct {
	URL        string
	APIKey     string
	MaxResults int
	Client     *http.Client
}

func NewSerper(apiKey string) *Serper {
	return &Serper{
		URL:        defaultSerperURL,
		APIKey:     apiKey,
		MaxResults: defaultMaxResults,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Serper) Name() string { return ToolName }

type serperReq struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResp struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date,omitempty"`
	} `json:"organic"`
}

// Run searches for query and renders the top results as a bullet list.
func (s *Serper) Run(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return "", errors.New("serper: api key is required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("serper: empty query")
	}
	limit := s.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	b, err := json.Marshal(serperReq{Q: query, Num: limit})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("serper: %s", msg)
	}

	var decoded serperResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("serper: decode response: %w", err)
	}

	var out strings.Builder
	for i, r := range decoded.Organic {
		if i >= limit {
			break
		}
		fmt.Fprintf(&out, "- %s (%s)", r.Title, r.Link)
		if r.Date != "" {
			fmt.Fprintf(&out, " [%s]", r.Date)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&out, ": %s", r.Snippet)
		}
		out.WriteString("\n")
	}
	if out.Len() == 0 {
		return "No search results found.", nil
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
