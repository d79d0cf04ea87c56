package retrieval

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResultsSentinel prefixes the single stdout line that carries the JSON payload.
const ResultsSentinel = "RAG_RESULTS:"

// maxLineBytes bounds a single stdout line. Payloads carry whole passages.
const maxLineBytes = 16 * 1024 * 1024

// ErrNoResults is returned when the output holds no sentinel line.
var ErrNoResults = errors.New("retrieval output contains no results line")

// wireItem mirrors one element of the payload array.
type wireItem struct {
	Context   string   `json:"context"`
	Relevance *float64 `json:"relevance"`
	Source    string   `json:"source"`
}

// ParseOutput finds the first sentinel line in out and decodes its payload.
// Items come back sorted by relevance, highest first, with ties kept in
// payload order. diagnostics reports how many non-sentinel lines were seen.
func ParseOutput(out []byte) (items []schemas.RetrievedItem, diagnostics int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var payload string
	found := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !found && strings.HasPrefix(line, ResultsSentinel) {
			payload = strings.TrimPrefix(line, ResultsSentinel)
			found = true
			continue
		}
		if line != "" {
			diagnostics++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, diagnostics, fmt.Errorf("failed to scan retrieval output: %w", err)
	}
	if !found {
		return nil, diagnostics, ErrNoResults
	}

	var raw []wireItem
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &raw); err != nil {
		return nil, diagnostics, fmt.Errorf("failed to decode retrieval payload: %w", err)
	}

	items = make([]schemas.RetrievedItem, 0, len(raw))
	for _, w := range raw {
		if strings.TrimSpace(w.Context) == "" {
			continue
		}
		items = append(items, schemas.RetrievedItem{
			Text:      w.Context,
			Relevance: clampRelevance(w.Relevance),
			Source:    w.Source,
		})
	}
	SortByRelevance(items)
	return items, diagnostics, nil
}

// SortByRelevance orders items by descending relevance. The sort is stable so
// equal scores keep their original order.
func SortByRelevance(items []schemas.RetrievedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance > items[j].Relevance
	})
}

func clampRelevance(r *float64) float64 {
	if r == nil || math.IsNaN(*r) {
		return 0
	}
	return math.Max(0, math.Min(1, *r))
}
