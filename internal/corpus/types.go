// Package corpus loads and labels the documents and scenario queries an
// evaluation run is built from.
//
// Both sources are line-delimited JSON. Documents and scenarios are immutable
// once loaded.
package corpus

// Document is a labeled corpus entry.
type Document struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Label Category `json:"label"`
}

// Scenario is a ground-truth pair: a query and the single document ID that
// answers it.
type Scenario struct {
	Query      string `json:"query"`
	ExpectedID string `json:"expected_id"`
}

// documentRecord accepts both the canonical field names and the ones used by
// the WebBizz dataset (result = id, input = text).
type documentRecord struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Result string `json:"result"`
	Input  string `json:"input"`
}

func (r documentRecord) id() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Result
}

func (r documentRecord) text() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Input
}
