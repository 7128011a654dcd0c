// Package insights implements the analysis behind the MCP tools: each service
// loads its input tables through the shared datasets.Manager, runs one engine
// and returns a page of typed rows with a cursor for the rest.
package insights

import (
	"encoding/json"
	"strings"

	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

// PageMeta captures paging/truncation metadata.
type PageMeta struct {
	Total      int    `json:"total"`
	Returned   int    `json:"returned"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// pager positions a result set. A cursor is only honoured for the same kind
// of result computed from the same inputs.
type pager struct {
	kind string
	rid  string
	qh   string
	off  int
	ps   int
}

// inputHash digests a tool input without its cursor and page size.
func inputHash(in any) string {
	b, _ := json.Marshal(in)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	delete(m, "cursor")
	delete(m, "page_size")
	b, _ = json.Marshal(m) // map keys marshal sorted
	return pagination.HashInputs(string(b))
}

func newPager(kind, rid string, in any, cursor string, pageSize, def int) (pager, error) {
	p := pager{kind: kind, rid: rid, qh: inputHash(in), ps: pageSize}
	if p.ps <= 0 {
		p.ps = def
	}
	if strings.TrimSpace(cursor) == "" {
		return p, nil
	}
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return p, analysiserr.Wrap(analysiserr.CursorInvalid, "insights."+kind, err)
	}
	if c.K != kind || c.Rid != rid || c.Qh != p.qh {
		return p, analysiserr.Newf(analysiserr.CursorInvalid, "insights."+kind, "cursor does not match the current inputs")
	}
	p.off, p.ps = c.Off, c.Ps
	return p, nil
}

// page slices rows for p and encodes the cursor of the following page.
func page[T any](p pager, rows []T) ([]T, PageMeta, error) {
	out, next := pagination.Page(rows, p.off, p.ps)
	if out == nil {
		out = []T{}
	}
	meta := PageMeta{Total: len(rows), Returned: len(out)}
	if next < 0 {
		return out, meta, nil
	}
	tok, err := pagination.EncodeCursor(pagination.Cursor{Rid: p.rid, K: p.kind, Off: next, Ps: p.ps, Qh: p.qh})
	if err != nil {
		return nil, meta, analysiserr.Wrap(analysiserr.CursorBuildFailed, "insights."+p.kind, err)
	}
	meta.Truncated = true
	meta.NextCursor = tok
	return out, meta, nil
}

// orDefault returns s, or def when s is blank.
func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
