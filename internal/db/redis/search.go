package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/domain/schema"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// VectorQuery runs a KNN search via FT.SEARCH and converts distances to similarities.
func (s *Store) VectorQuery(ctx context.Context, q *db.VectorQuery) ([]db.Hit, error) {
	if q.Index == "" || q.Field == "" {
		return nil, fmt.Errorf("index and field are required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	filterStr := buildFilter(q.Filter)
	if filterStr == "" {
		filterStr = "*"
	} else {
		filterStr = "(" + filterStr + ")"
	}
	queryStr := fmt.Sprintf("%s=>[KNN %d @%s $BLOB AS %s]", filterStr, q.TopK, q.Field, vectorScoreField)

	args := []string{s.keys.index(q.Collection, q.Index), queryStr}
	args = appendReturn(args, vectorScoreField, q.UpdatedField)
	args = append(args,
		"SORTBY", vectorScoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return s.parseHits(raw, q.Collection, q.UpdatedField, "", func(fields map[string]string) float64 {
		d, err := strconv.ParseFloat(fields[vectorScoreField], 64)
		if err != nil {
			return 0
		}
		return similarity(q.Similarity, d)
	})
}

// similarity maps an FT distance to a similarity where larger is closer.
func similarity(sim schema.Similarity, distance float64) float64 {
	switch sim {
	case schema.L2:
		return 1 / (1 + distance)
	default:
		// COSINE reports 1-cos, IP reports 1-dot
		return 1 - distance
	}
}

// TextQuery runs a relevance-scored text search via FT.SEARCH over every field of the text index.
func (s *Store) TextQuery(ctx context.Context, q *db.TextQuery) ([]db.Hit, error) {
	if q.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	terms := textTerms(q.Query)
	if len(terms) == 0 {
		return nil, nil
	}
	// any term matches; BM25 ranks documents holding more of them first
	textPart := "(" + strings.Join(terms, " | ") + ")"
	queryStr := textPart
	if filterStr := buildFilter(q.Filter); filterStr != "" {
		queryStr = filterStr + " " + textPart
	}

	args := []string{s.keys.index(q.Collection, q.Index), queryStr}
	args = appendReturn(args, q.UpdatedField)
	args = append(args,
		"WITHSCORES",
		"SCORER", textScorer,
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return s.parseScoredHits(raw, q.Collection, q.UpdatedField)
}

// ScalarQuery runs a filter-only search via FT.SEARCH ordered by the leading key.
// FT.SEARCH sorts by one attribute, so keys after the first do not affect order.
func (s *Store) ScalarQuery(ctx context.Context, q *db.ScalarQuery) ([]db.Hit, error) {
	if q.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	queryStr := buildFilter(q.Filter)
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{s.keys.index(q.Collection, q.Index), queryStr}
	args = appendReturn(args, q.UpdatedField, q.TagField)
	if len(q.OrderBy) > 0 {
		dir := "ASC"
		if q.OrderBy[0].Direction == schema.Desc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", q.OrderBy[0].Field, dir)
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(q.Limit), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return s.parseHits(raw, q.Collection, q.UpdatedField, q.TagField, func(map[string]string) float64 { return 1 })
}

func appendReturn(args []string, fields ...string) []string {
	ret := []string{filter.IDField}
	for _, f := range fields {
		if f != "" {
			ret = append(ret, f)
		}
	}
	args = append(args, "RETURN", strconv.Itoa(len(ret)))
	return append(args, ret...)
}

// --- Result parsing ---

// parseHits reads a 2-stride reply: [total, key1, fields1, key2, fields2, ...]
func (s *Store) parseHits(
	raw []rueidis.RedisMessage, collection, updatedField, tagField string, score func(map[string]string) float64,
) ([]db.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(fields)
		h := s.hit(collection, key, m, updatedField, score(m))
		if v := m[tagField]; tagField != "" && v != "" {
			h.Tags = strings.Split(v, tagSeparator)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// parseScoredHits reads a WITHSCORES 3-stride reply: [total, key1, score1, fields1, ...]
func (s *Store) parseScoredHits(raw []rueidis.RedisMessage, collection, updatedField string) ([]db.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/3)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}
		hits = append(hits, s.hit(collection, key, parseFieldPairs(fields), updatedField, score))
	}
	return hits, nil
}

func (s *Store) hit(collection, key string, fields map[string]string, updatedField string, score float64) db.Hit {
	id, ok := fields[filter.IDField]
	if !ok {
		id = strings.TrimPrefix(key, s.keys.docPrefix(collection))
	}
	h := db.Hit{ID: id, Score: score}
	if updatedField != "" {
		if v, err := strconv.ParseFloat(fields[updatedField], 64); err == nil {
			h.Updated = int64(v)
		}
	}
	return h
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter translates a filter.Expression into an FT.SEARCH query string.
// Conditions are intersected, which is the FT default for space-separated terms.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(expr.Conditions()))
	for _, cond := range expr.Conditions() {
		parts = append(parts, buildCondition(cond))
	}
	return strings.Join(parts, " ")
}

func buildCondition(c filter.Condition) string {
	if c.IsNumeric() {
		return buildNumericFilter(c)
	}
	escaped := make([]string, len(c.Values()))
	for i, v := range c.Values() {
		escaped[i] = tagEscaper.Replace(v)
	}
	tag := fmt.Sprintf("@%s:{%s}", c.Field(), strings.Join(escaped, " | "))
	if c.Op() == filter.OpNe {
		return "-" + tag
	}
	return tag
}

func buildNumericFilter(c filter.Condition) string {
	v := formatNumber(c.Number())
	minBound, maxBound := "-inf", "+inf"

	switch c.Op() {
	case filter.OpEq, filter.OpNe:
		minBound, maxBound = v, v
	case filter.OpGt:
		minBound = "(" + v
	case filter.OpGte:
		minBound = v
	case filter.OpLt:
		maxBound = "(" + v
	case filter.OpLte:
		maxBound = v
	}

	r := fmt.Sprintf("@%s:[%s %s]", c.Field(), minBound, maxBound)
	if c.Op() == filter.OpNe {
		return "-" + r
	}
	return r
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"/", "\\/",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"?", "\\?",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

// textTerms splits a free-text query into lower-cased word tokens, the way the
// FT tokenizer splits indexed text on punctuation and whitespace.
func textTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
