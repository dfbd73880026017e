package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/you-humble/resinkit/pkg/domain"

	"golang.org/x/sync/errgroup"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or json)", s)
	}
}

type FileStore interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
}

// Artifact is one exported table.
type Artifact struct {
	Filename string
	Rows     int
	Size     int64
	Hash     string
}

type Exporter struct {
	store    FileStore
	parallel int
}

func NewExporter(store FileStore, parallel int) *Exporter {
	if parallel <= 0 {
		parallel = 4
	}
	return &Exporter{store: store, parallel: parallel}
}

// Export writes every table of rt under results/<task_id>/. A SingleTable
// becomes result.<ext>; a TableSequence becomes table_<n>.<ext> in order.
func (e *Exporter) Export(ctx context.Context, taskID string, rt domain.ResultTable, format Format) ([]Artifact, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, domain.ErrInvalidTaskID
	}
	if rt == nil {
		return nil, domain.ErrNoQueryResults
	}

	tables := rt.Tables()
	_, single := rt.(domain.SingleTable)
	out := make([]Artifact, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, t := range tables {
		name := Filename(taskID, i, single, format)
		g.Go(func() error {
			body, err := Encode(t, format)
			if err != nil {
				return fmt.Errorf("encode %s: %w", name, err)
			}
			size, hash, err := e.store.Save(gctx, bytes.NewReader(body), name, int64(len(body)))
			if err != nil {
				return fmt.Errorf("save %s: %w", name, err)
			}
			out[i] = Artifact{Filename: name, Rows: t.Len(), Size: size, Hash: hash}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func Filename(taskID string, index int, single bool, format Format) string {
	base := "result"
	if !single {
		base = fmt.Sprintf("table_%d", index)
	}
	return path.Join("results", taskID, base+"."+string(format))
}
