package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/you-humble/resinkit/internal/infra/store/artifact/replicator"
	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersTable() domain.Table {
	return domain.Table{
		Columns: []string{"order_id", "customer", "meta"},
		Rows: [][]any{
			{json.Number("1"), "ann, jr", map[string]any{"vip": true}},
			{json.Number("2"), nil, nil},
		},
	}
}

func TestEncodeCSV(t *testing.T) {
	b, err := Encode(ordersTable(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "order_id,customer,meta\n1,\"ann, jr\",\"{\"\"vip\"\":true}\"\n2,,\n", string(b))
}

func TestEncodeJSONKeepsColumnOrder(t *testing.T) {
	b, err := Encode(ordersTable(), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"order_id":1,"customer":"ann, jr","meta":{"vip":true}},{"order_id":2,"customer":null,"meta":null}]`+"\n",
		string(b))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, hash, err := s.Save(ctx, strings.NewReader("a,b\n"), "results/t1/result.csv", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Len(t, hash, 64)

	rc, size, err := s.Open(ctx, "results/t1/result.csv")
	require.NoError(t, err)
	defer rc.Close()
	assert.EqualValues(t, 4, size)

	_, _, err = s.Open(ctx, "results/t1/missing.csv")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, _, err = s.Save(ctx, strings.NewReader("x"), "../escape.csv", 0)
	assert.Error(t, err)
}

func TestExporterSingleAndSequence(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocalStore(dir)
	require.NoError(t, err)
	e := NewExporter(local, 2)
	ctx := context.Background()

	arts, err := e.Export(ctx, "t1", domain.SingleTable{Table: ordersTable()}, FormatCSV)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "results/t1/result.csv", arts[0].Filename)
	assert.Equal(t, 2, arts[0].Rows)
	_, err = os.Stat(filepath.Join(dir, "results", "t1", "result.csv"))
	require.NoError(t, err)

	seq := domain.TableSequence{ordersTable(), {Columns: []string{"x"}}}
	arts, err = e.Export(ctx, "t2", seq, FormatJSON)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "results/t2/table_0.json", arts[0].Filename)
	assert.Equal(t, "results/t2/table_1.json", arts[1].Filename)

	_, err = e.Export(ctx, "", seq, FormatJSON)
	assert.ErrorIs(t, err, domain.ErrInvalidTaskID)
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	fails int
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (m *memStore) Save(_ context.Context, r io.Reader, name string, _ int64) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return 0, "", errors.New("remote unavailable")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, "", err
	}
	m.files[name] = b
	return int64(len(b)), "", nil
}

func (m *memStore) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	if !ok {
		return nil, 0, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func TestAsyncStoreReplicatesWithRetry(t *testing.T) {
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	remote := newMemStore()
	remote.fails = 1

	var (
		mu      sync.Mutex
		results []replicator.Result
	)
	s := NewAsyncStore(context.Background(), local, remote, 8, 2, 3,
		replicator.WithRetryDelay(time.Millisecond),
		replicator.WithResultHook(func(r replicator.Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	)

	arts, err := NewExporter(s, 1).Export(context.Background(), "t1", domain.SingleTable{Table: ordersTable()}, FormatCSV)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.EqualValues(t, 2, results[0].Attempts)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Contains(t, remote.files, arts[0].Filename)
}

func TestAsyncStoreOpenFallsBackToRemote(t *testing.T) {
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	remote := newMemStore()
	remote.files["results/t9/result.json"] = []byte("[]\n")

	s := NewAsyncStore(context.Background(), local, remote, 1, 1, 0)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	rc, size, err := s.Open(context.Background(), "results/t9/result.json")
	require.NoError(t, err)
	defer rc.Close()
	assert.EqualValues(t, 3, size)

	_, _, err = s.Open(context.Background(), "results/none/result.json")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
