package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	CodeTokenizerName  = "code_tokenizer"
	CodeStopFilterName = "code_stop"
	CodeAnalyzerName   = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(CodeStopFilterName, codeStopFilterConstructor)
}

// BleveKeywordIndex implements KeywordIndex with one bleve index per table.
type BleveKeywordIndex struct {
	mu      sync.Mutex
	dir     string
	source  KeywordSource
	indexes map[string]bleve.Index
	closed  bool
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

// bleveDocument is the stored shape of a row.
type bleveDocument struct {
	RowID       string `json:"row_id"`
	EmbeddingID string `json:"embedding_id"`
	ProjectID   string `json:"project_id"`
	Text        string `json:"text"`
	Content     string `json:"content"`
}

// NewBleveKeywordIndex creates an index rooted at dir (<dir>/<table>.bleve),
// or a memory-only index per table when dir is empty.
func NewBleveKeywordIndex(dir string, source KeywordSource) (*BleveKeywordIndex, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &BleveKeywordIndex{
		dir:     dir,
		source:  source,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// Backend implements KeywordIndex.
func (b *BleveKeywordIndex) Backend() string {
	return KeywordBackendBleve
}

func (b *BleveKeywordIndex) tablePath(table string) string {
	if b.dir == "" {
		return ""
	}
	return filepath.Join(b.dir, table+".bleve")
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": CodeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			CodeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = CodeAnalyzerName
	content.Store = false

	project := bleve.NewKeywordFieldMapping()

	storedOnly := bleve.NewTextFieldMapping()
	storedOnly.Index = false
	storedOnly.Store = true

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("project_id", project)
	doc.AddFieldMappingsAt("row_id", storedOnly)
	doc.AddFieldMappingsAt("embedding_id", storedOnly)
	doc.AddFieldMappingsAt("text", storedOnly)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = CodeAnalyzerName
	return indexMapping, nil
}

// open returns an existing index for table, or nil when it was never built.
// Caller holds mu.
func (b *BleveKeywordIndex) open(table string) (bleve.Index, error) {
	if idx, ok := b.indexes[table]; ok {
		return idx, nil
	}
	path := b.tablePath(table)
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	if err := validateIndexMeta(path); err != nil {
		slog.Warn("keyword_index_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		return nil, nil
	}

	idx, err := bleve.Open(path)
	if err != nil {
		// Derived data: a broken index is dropped and rebuilt from the store.
		slog.Warn("keyword_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		return nil, nil
	}
	b.indexes[table] = idx
	return idx, nil
}

// ensureBuilt opens or builds the table's index. Caller holds mu.
func (b *BleveKeywordIndex) ensureBuilt(ctx context.Context, table string) (bleve.Index, error) {
	idx, err := b.open(table)
	if err != nil || idx != nil {
		return idx, err
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, err
	}
	if path := b.tablePath(table); path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index %s: %w", table, err)
	}

	docs, err := b.source.KeywordDocuments(ctx, table)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load %s rows for keyword index: %w", table, err)
	}
	if err := b.index(idx, docs); err != nil {
		_ = idx.Close()
		return nil, err
	}

	b.indexes[table] = idx
	slog.Debug("keyword index built",
		slog.String("backend", KeywordBackendBleve),
		slog.String("table", table),
		slog.Int("rows", len(docs)))
	return idx, nil
}

func (b *BleveKeywordIndex) index(idx bleve.Index, docs []*KeywordDocument) error {
	if len(docs) == 0 {
		return nil
	}
	batch := idx.NewBatch()
	for _, d := range docs {
		err := batch.Index(d.RowID, bleveDocument{
			RowID:       d.RowID,
			EmbeddingID: d.EmbeddingID,
			ProjectID:   d.ProjectID,
			Text:        d.Text,
			Content:     d.Content,
		})
		if err != nil {
			return fmt.Errorf("failed to index row %s: %w", d.RowID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Built implements KeywordIndex.
func (b *BleveKeywordIndex) Built(_ context.Context, table string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, _ := b.open(table)
	return idx != nil
}

// Add implements KeywordIndex.
func (b *BleveKeywordIndex) Add(_ context.Context, table string, docs ...*KeywordDocument) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	idx, err := b.open(table)
	if err != nil || idx == nil {
		return err
	}
	return b.index(idx, docs)
}

// Rebuild implements KeywordIndex.
func (b *BleveKeywordIndex) Rebuild(ctx context.Context, table string) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if idx, ok := b.indexes[table]; ok {
		_ = idx.Close()
		delete(b.indexes, table)
	}
	if path := b.tablePath(table); path != "" {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove keyword index %s: %w", table, err)
		}
	}
	_, err := b.ensureBuilt(ctx, table)
	return err
}

// Search implements KeywordIndex. The project filter is a term query in
// the same conjunction as the text match, so it applies before Size.
func (b *BleveKeywordIndex) Search(ctx context.Context, q KeywordQuery) ([]*KeywordHit, error) {
	if !ValidTable(q.Table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, q.Table)
	}
	if strings.TrimSpace(q.Query) == "" {
		return []*KeywordHit{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	idx, err := b.ensureBuilt(ctx, q.Table)
	if err != nil {
		return nil, err
	}

	match := bleve.NewMatchQuery(q.Query)
	match.SetField("content")

	var req *bleve.SearchRequest
	if q.ProjectID != "" {
		project := bleve.NewTermQuery(q.ProjectID)
		project.SetField("project_id")
		req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, project))
	} else {
		req = bleve.NewSearchRequest(match)
	}
	req.Size = q.Limit
	if req.Size <= 0 {
		req.Size = 10
	}
	req.Fields = []string{"row_id", "embedding_id", "project_id", "text"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]*KeywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, &KeywordHit{
			RowID:       h.ID,
			EmbeddingID: fieldString(h.Fields, "embedding_id"),
			ProjectID:   fieldString(h.Fields, "project_id"),
			Text:        fieldString(h.Fields, "text"),
			Score:       h.Score,
		})
	}
	return hits, nil
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// Close implements KeywordIndex.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for table, idx := range b.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", table, err))
		}
	}
	b.indexes = nil
	return errors.Join(errs...)
}

// validateIndexMeta reports whether path holds a readable bleve index.
func validateIndexMeta(path string) error {
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return err
	}
	var meta map[string]interface{}
	return json.Unmarshal(data, &meta)
}

func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

// bleveCodeTokenizer emits TokenizeCode tokens.
type bleveCodeTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lowerText := strings.ToLower(text)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(lowerText[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
			offset = start
		}
		end := start + len(token)
		if end > len(text) {
			end = len(text)
		}

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}

func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
