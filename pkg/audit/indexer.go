package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "audit")

const DefaultIndex = "verifications"

// DefaultSearchSize caps the number of hits returned by Search.
const DefaultSearchSize = 50

// indexMapping keeps the identifiers out of full text analysis so that
// searching for a slug or a status matches exactly.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "edirSlug": {"type": "keyword"},
      "paymentId": {"type": "keyword"},
      "status": {"type": "keyword"},
      "via": {"type": "keyword"},
      "lookupUrl": {"type": "keyword"},
      "message": {"type": "text"},
      "fields": {"type": "object"},
      "createdAt": {"type": "date"}
    }
  }
}`

// Indexer makes audit records searchable in OpenSearch.
type Indexer struct {
	addr               string
	username           string
	password           string
	insecureSkipVerify bool
	index              string
	transport          http.RoundTripper

	client *opensearch.Client
}

type Option func(*Indexer)

func New(addr string, opts ...Option) (*Indexer, error) {
	if addr == "" {
		return nil, fmt.Errorf("opensearch address is required")
	}
	idx := &Indexer{
		addr:  addr,
		index: DefaultIndex,
	}
	for _, opt := range opts {
		opt(idx)
	}

	transport := idx.transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: idx.insecureSkipVerify},
		}
	}

	var err error
	idx.client, err = opensearch.NewClient(opensearch.Config{
		Transport: transport,
		Addresses: []string{idx.addr},
		Username:  idx.username,
		Password:  idx.password,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create opensearch client: %w", err)
	}
	return idx, nil
}

// Init checks that OpenSearch is reachable and creates the index.
func (i *Indexer) Init(ctx context.Context) error {
	if err := i.Ping(ctx); err != nil {
		return err
	}
	return i.createIndex(ctx)
}

func (i *Indexer) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("unable to ping opensearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("unable to ping opensearch: %s", res.Status())
	}
	return nil
}

func (i *Indexer) createIndex(ctx context.Context) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: i.index,
		Body:  strings.NewReader(indexMapping),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusBadRequest {
		// Index already exists
		return nil
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unable to create index %s: unexpected status %s", i.index, res.Status())
	}
	log.Infof("created index %s", i.index)
	return nil
}

func (i *Indexer) Index(ctx context.Context, rec models.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("unable to encode record: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      i.index,
		DocumentID: rec.ID.String(),
		Body:       bytes.NewReader(body),
		OpType:     "index",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("unable to index %s: %w", rec.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch returned an invalid status %s: %s", res.Status(), decodeError(res.Body))
	}
	log.Debugf("indexed %s", rec.ID)
	return nil
}

// Hit is a search result. Highlight maps a field to the matching fragments.
type Hit struct {
	Record    models.AuditRecord  `json:"record"`
	Score     float64             `json:"score"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    models.AuditRecord  `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a query_string query over the records, newest first. An
// empty edirSlug searches across all edirs.
func (i *Indexer) Search(ctx context.Context, edirSlug string, term string) ([]Hit, error) {
	query := map[string]any{
		"query_string": map[string]any{
			"query": term,
		},
	}
	if edirSlug != "" {
		query = map[string]any{
			"bool": map[string]any{
				"must":   query,
				"filter": map[string]any{"term": map[string]any{"edirSlug": edirSlug}},
			},
		}
	}
	body, err := json.Marshal(map[string]any{
		"query": query,
		"highlight": map[string]any{
			"fields": map[string]any{"message": map[string]any{}},
		},
	})
	if err != nil {
		return nil, err
	}

	size := DefaultSearchSize
	req := opensearchapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		Sort:  []string{"createdAt:desc"},
		Size:  &size,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("unable to perform search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("unable to perform search: %s: %s", res.Status(), decodeError(res.Body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("unable to decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, Hit{Record: h.Source, Score: h.Score, Highlight: h.Highlight})
	}
	return hits, nil
}

// decodeError extracts the error reason. OpenSearch reports errors either
// as a string or as an object with a reason.
func decodeError(body io.Reader) string {
	var errorMessage struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&errorMessage); err != nil {
		return ""
	}
	var reason struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(errorMessage.Error, &reason); err == nil && reason.Reason != "" {
		return reason.Reason
	}
	var s string
	if err := json.Unmarshal(errorMessage.Error, &s); err == nil {
		return s
	}
	return string(errorMessage.Error)
}
