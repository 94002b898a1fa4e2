// Package parser extracts tables from HTML documents.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/htmltable2csv/models"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html/charset"
)

// Limits from the HTML living standard.
const (
	maxColSpan = 1000
	maxRowSpan = 65534
)

// CacheStats reports parse cache usage.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// Parser turns HTML into tables and remembers recent results keyed by
// content digest. Returned tables are shared with the cache and must not be
// modified by callers.
type Parser struct {
	cache  *lru.Cache[string, []*models.Table]
	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a parser with an LRU cache of cacheSize documents. A size of
// zero or less disables caching.
func New(cacheSize int) (*Parser, error) {
	p := &Parser{}
	if cacheSize > 0 {
		cache, err := lru.New[string, []*models.Table](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create parse cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Parse decodes content using contentType (may be empty) and the document's
// own charset hints, then returns every table in document order.
func (p *Parser) Parse(content []byte, contentType string) ([]*models.Table, error) {
	if p.cache == nil {
		return ParseTables(bytes.NewReader(content), contentType)
	}

	key := digest(content, contentType)
	if tables, ok := p.cache.Get(key); ok {
		p.hits.Add(1)
		return tables, nil
	}
	p.misses.Add(1)

	tables, err := ParseTables(bytes.NewReader(content), contentType)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, tables)
	return tables, nil
}

// Stats returns a snapshot of cache hits and misses.
func (p *Parser) Stats() CacheStats {
	return CacheStats{Hits: p.hits.Load(), Misses: p.misses.Load()}
}

func digest(content []byte, contentType string) string {
	h := sha256.New()
	h.Write([]byte(contentType))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// ParseTables reads an HTML document and returns its tables in document
// order. Nested tables are returned as separate entries after their parent.
// Tables without any rows are skipped.
func ParseTables(r io.Reader, contentType string) ([]*models.Table, error) {
	decoded, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		return isHidden(style)
	}).Remove()

	var tables []*models.Table
	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		grid := expandSpans(tableRows(s))
		if len(grid) == 0 {
			return
		}
		tables = append(tables, &models.Table{
			Header: NormalizeHeader(grid[0]),
			Rows:   grid[1:],
		})
	})
	return tables, nil
}

// tableRows returns the rows owned by table: thead rows first, then body
// rows in document order, then tfoot rows.
func tableRows(table *goquery.Selection) [][]rawCell {
	var head, body, foot [][]rawCell
	table.Children().Each(func(_ int, child *goquery.Selection) {
		switch {
		case child.Is("thead"):
			head = append(head, sectionRows(child)...)
		case child.Is("tfoot"):
			foot = append(foot, sectionRows(child)...)
		case child.Is("tbody"):
			body = append(body, sectionRows(child)...)
		case child.Is("tr"):
			body = append(body, rowCells(child))
		}
	})

	rows := make([][]rawCell, 0, len(head)+len(body)+len(foot))
	rows = append(rows, head...)
	rows = append(rows, body...)
	return append(rows, foot...)
}

func sectionRows(section *goquery.Selection) [][]rawCell {
	var rows [][]rawCell
	section.ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, rowCells(tr))
	})
	return rows
}

type rawCell struct {
	text    string
	colSpan int
	rowSpan int
}

func rowCells(tr *goquery.Selection) []rawCell {
	var cells []rawCell
	tr.ChildrenFiltered("td, th").Each(func(_ int, c *goquery.Selection) {
		cells = append(cells, rawCell{
			text:    NormalizeText(c.Text()),
			colSpan: spanAttr(c, "colspan", maxColSpan),
			rowSpan: spanAttr(c, "rowspan", maxRowSpan),
		})
	})
	return cells
}

func spanAttr(s *goquery.Selection, name string, limit int) int {
	v, ok := s.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	if n > limit {
		return limit
	}
	return n
}

type carried struct {
	text      string
	remaining int
}

// expandSpans lays cells out on a grid, repeating the text of spanning cells
// into every slot they cover, and pads short rows with empty cells. A rowspan
// cell always lands in its own column, even when the row it covers ends
// before reaching that column.
func expandSpans(rows [][]rawCell) [][]string {
	var grid [][]string
	carry := make(map[int]carried)

	take := func(col int) (string, bool) {
		c, ok := carry[col]
		if !ok {
			return "", false
		}
		if c.remaining--; c.remaining == 0 {
			delete(carry, col)
		} else {
			carry[col] = c
		}
		return c.text, true
	}

	for _, cells := range rows {
		if len(cells) == 0 && len(carry) == 0 {
			continue
		}
		var out []string
		// Rowspans started by this row must not fill its own trailing slots.
		pending := sortedCols(carry)
		for _, cell := range cells {
			for i := 0; i < cell.colSpan; i++ {
				for {
					text, ok := take(len(out))
					if !ok {
						break
					}
					out = append(out, text)
				}
				col := len(out)
				out = append(out, cell.text)
				if cell.rowSpan > 1 {
					carry[col] = carried{text: cell.text, remaining: cell.rowSpan - 1}
				}
			}
		}
		for _, col := range pending {
			if col < len(out) {
				continue
			}
			text, ok := take(col)
			if !ok {
				continue
			}
			for len(out) < col {
				out = append(out, "")
			}
			out = append(out, text)
		}
		grid = append(grid, out)
	}

	// Rows that exist only because a rowspan ran past the last <tr>.
	for len(carry) > 0 {
		var out []string
		for _, col := range sortedCols(carry) {
			text, _ := take(col)
			for len(out) < col {
				out = append(out, "")
			}
			out = append(out, text)
		}
		grid = append(grid, out)
	}

	return padRows(grid)
}

func sortedCols(carry map[int]carried) []int {
	cols := make([]int, 0, len(carry))
	for col := range carry {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	return cols
}

func padRows(grid [][]string) [][]string {
	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range grid {
		for len(row) < width {
			row = append(row, "")
		}
		grid[i] = row
	}
	return grid
}
