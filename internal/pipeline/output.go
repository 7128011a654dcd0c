package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vinodismyname/sectorspace/internal/complexity"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"gopkg.in/yaml.v3"
)

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// column is an optional per-key metric appended to a summary sheet.
type column struct {
	name   string
	values matrix.Vector
}

func summarySheet(name string, rows []complexity.SummaryRow, extra ...column) datasets.Sheet {
	s := datasets.Sheet{Name: name, Header: []string{"key", "name", "size", "index", "outlook"}}
	var cols []map[string]float64
	for _, c := range extra {
		if c.values.Len() == 0 {
			continue
		}
		s.Header = append(s.Header, c.name)
		cols = append(cols, c.values.Map())
	}
	for _, r := range rows {
		row := []any{r.Key, r.Name, r.Size, optional(r.Index), optional(r.Outlook)}
		for _, c := range cols {
			if f, ok := c[r.Key]; ok {
				row = append(row, f)
			} else {
				row = append(row, nil)
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func exposureSheet(name string, rows []exposure.SectorExposureRow) datasets.Sheet {
	s := datasets.Sheet{Name: name, Header: []string{"sector", "month", "interest", "zscore", "rank"}}
	for _, r := range rows {
		s.Rows = append(s.Rows, []any{r.Sector, r.Month.String(), r.Interest, r.ZScore, r.Rank})
	}
	return s
}

func levelSheet(name string, rows []exposure.LevelShareRow) datasets.Sheet {
	s := datasets.Sheet{Name: name, Header: []string{"location", "name", "month", "share"}}
	for _, r := range rows {
		s.Rows = append(s.Rows, []any{r.Location, r.Name, r.Month.String(), r.Share})
	}
	return s
}

// sheets lays out every result table in workbook order. A summary sheet is
// left out only when its stage failed outright; degenerate indices just
// leave the index columns blank.
func (s *run) sheets() []datasets.Sheet {
	res := &s.res
	var out []datasets.Sheet

	if res.locations != nil {
		out = append(out, summarySheet("locations", res.locations,
			column{"log_fitness", res.fitness},
			column{"fitness_plus", res.fitnessPlus}))
	}
	if res.sectors != nil {
		out = append(out, summarySheet("sectors", res.sectors))
	}

	div := datasets.Sheet{Name: "diversity", Header: []string{"location", "name", "n_active", "n_rca"}}
	for _, r := range res.diversity {
		div.Rows = append(div.Rows, []any{r.Location, r.Name, r.Active, r.RCA})
	}
	out = append(out, div)

	if res.units != nil {
		u := datasets.Sheet{Name: "units", Header: []string{"location", "name", "sector", "value", "lq", "has_rca", "distance", "omega", "oog"}}
		for _, r := range res.units {
			u.Rows = append(u.Rows, []any{r.Location, r.Name, r.Sector, r.Value, r.LQ, r.HasRCA, optional(r.Distance), r.Omega, optional(r.OOG)})
		}
		out = append(out, u)
	}

	out = append(out, exposureSheet("exposure", res.exposure))
	if res.sections != nil {
		out = append(out, exposureSheet("exposure_sections", res.sections))
	}

	nodes := datasets.Sheet{Name: "network_nodes", Header: []string{"sector", "degree", "x", "y"}}
	for _, l := range res.space.Labels() {
		row := []any{l, len(res.space.Neighbors(l)), nil, nil}
		if p, ok := res.space.Positions[l]; ok {
			row[2], row[3] = p.X, p.Y
		}
		nodes.Rows = append(nodes.Rows, row)
	}
	edges := datasets.Sheet{Name: "network_edges", Header: []string{"a", "b", "weight"}}
	for _, e := range res.space.Edges() {
		edges.Rows = append(edges.Rows, []any{e.A, e.B, e.Weight})
	}
	out = append(out, nodes, edges)

	nb := datasets.Sheet{Name: "neighbors", Header: []string{"sector", "month", "rank", "neighbors", "unranked"}}
	for rank := 0; rank < len(s.cfg.Exposure.Quantiles)-1; rank++ {
		nb.Header = append(nb.Header, fmt.Sprintf("share_rank_%d", rank))
	}
	for _, r := range res.neighbors {
		row := []any{r.Sector, r.Month.String(), r.Rank, r.Neighbors, r.Unranked}
		for rank := 0; rank < len(s.cfg.Exposure.Quantiles)-1; rank++ {
			row = append(row, r.Shares[rank])
		}
		nb.Rows = append(nb.Rows, row)
	}
	out = append(out, nb)

	opts := datasets.Sheet{Name: "diversification", Header: []string{"sector", "month", "mean_distance", "min_distance", "rank"}}
	for _, r := range res.ranks {
		opts.Rows = append(opts.Rows, []any{r.Sector, r.Month.String(), r.Mean, r.Min, r.Rank})
	}
	out = append(out, opts)

	sh := datasets.Sheet{Name: "exposure_shares", Header: []string{"location", "name", "month", "rank", "value", "share"}}
	for _, r := range res.exposureShares {
		sh.Rows = append(sh.Rows, []any{r.Location, r.Name, r.Month.String(), r.Rank, r.Value, r.Share})
	}
	out = append(out, sh,
		levelSheet("high_exposure", res.highExposure),
		levelSheet("low_diversification", res.lowDiversity))
	return out
}

// outputPath validates p against the allow-list when one is configured.
func (s *run) outputPath(p string) (string, error) {
	if s.paths == nil {
		return p, nil
	}
	out, err := s.paths.ValidateOutputPath(p)
	if err != nil {
		return "", analysiserr.Wrap(analysiserr.PermissionDenied, "pipeline.write", fmt.Errorf("%s: %w", p, err))
	}
	return out, nil
}

func (s *run) write(ctx context.Context) ([]analysiserr.Warning, error) {
	o := s.cfg.Output
	sheets := s.sheets()

	wb, err := s.outputPath(o.Workbook)
	if err != nil {
		return nil, err
	}
	if err := datasets.WriteWorkbook(wb, sheets); err != nil {
		return nil, err
	}
	s.manifest.Outputs = append(s.manifest.Outputs, wb)

	if o.CSVDir != "" {
		for _, sh := range sheets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, err := s.outputPath(filepath.Join(o.CSVDir, sh.Name+".csv"))
			if err != nil {
				return nil, err
			}
			if err := datasets.WriteCSV(p, sh); err != nil {
				return nil, err
			}
			s.manifest.Outputs = append(s.manifest.Outputs, p)
		}
	}

	if o.Manifest != "" {
		p, err := s.outputPath(o.Manifest)
		if err != nil {
			return nil, err
		}
		s.manifest.Outputs = append(s.manifest.Outputs, p)
		// The write stage itself is still running; stamp what is known now.
		s.manifest.FinishedAt = s.clock().UTC()
		if err := WriteManifest(p, s.manifest); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// WriteManifest encodes m as YAML at path.
func WriteManifest(path string, m *Manifest) error {
	const op = "pipeline.WriteManifest"
	fh, err := os.Create(path)
	if err != nil {
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	enc := yaml.NewEncoder(fh)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		_ = fh.Close()
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	if err := enc.Close(); err != nil {
		_ = fh.Close()
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	if err := fh.Close(); err != nil {
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	return nil
}

// ReadManifest decodes a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.ReadFailed, "pipeline.ReadManifest", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, analysiserr.Wrap(analysiserr.ReadFailed, "pipeline.ReadManifest", err)
	}
	return &m, nil
}
