package backfill

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/storage"
	"github.com/rickgao/options-data/internal/writer"
)

const sampleCSV = "Date,Symbol,Underlying,Type,Expiration,Strike,Bid,Ask,Last,Volume,OpenInt,ImpVol,TheoreticalVol,NonStandard\n" +
	"2019-03-01,SPY190315C00280000,,C,20190315,280,2.5,2.6,2.55,900,12000,0.14,0.13,False\n" +
	"2019-03-01,SPY190315P00280000,,P,20190315,280,3.1,3.2,3.15,700,9000,0.15,0.15,False\n"

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstded(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func newImporter(t *testing.T, store storage.Store) *Importer {
	t.Helper()
	im, err := New(Config{Parallelism: 2}, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return im
}

func TestSymbolFromPath(t *testing.T) {
	tests := map[string]string{
		"/data/spy.csv":      "SPY",
		"aapl.csv.gz":        "AAPL",
		"/x/y/brk.b.CSV.zst": "BRK.B",
		"qqq":                "QQQ",
	}
	for in, want := range tests {
		if got := SymbolFromPath(in); got != want {
			t.Errorf("SymbolFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKey(t *testing.T) {
	if got := Key("2019-03-01", "SPY"); got != "date=2019-03-01/SPY.parquet" {
		t.Errorf("Key() = %q", got)
	}
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", []byte(sampleCSV))
	b := writeFile(t, dir, "b.csv.gz", gzipped(t, sampleCSV))

	files, err := ExpandFiles([]string{filepath.Join(dir, "*.csv*"), a})
	if err != nil {
		t.Fatalf("ExpandFiles() error = %v", err)
	}
	if len(files) != 2 || files[0] != a || files[1] != b {
		t.Errorf("ExpandFiles() = %v", files)
	}

	_, err = ExpandFiles([]string{filepath.Join(dir, "*.missing")})
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestImporter_Run(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "spy.csv", []byte(sampleCSV)),
		writeFile(t, dir, "qqq.csv.gz", gzipped(t, sampleCSV)),
		writeFile(t, dir, "iwm.csv.zst", zstded(t, sampleCSV)),
	}

	store := storage.NewMemory()
	results, err := newImporter(t, store).Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	for i, want := range []string{"SPY", "QQQ", "IWM"} {
		res := results[i]
		if res.Err != nil || res.Skipped || res.Rows != 2 {
			t.Errorf("result %d = %+v", i, res)
		}
		key := Key("2019-03-01", want)
		if res.Key != key {
			t.Errorf("result %d key = %q, want %q", i, res.Key, key)
		}

		data, err := store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		rows, err := writer.Decode[Row](data)
		if err != nil {
			t.Fatalf("Decode error = %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("%s: got %d rows", key, len(rows))
		}
		if rows[0].Underlying != want || rows[0].Type != "c" || rows[1].Type != "p" {
			t.Errorf("%s: rows = %+v", key, rows)
		}
		if rows[0].Expiration != 20190315 || rows[0].OpenInt != 12000 || rows[0].TheoreticalVol != 0.13 {
			t.Errorf("%s: row 0 = %+v", key, rows[0])
		}
		if store.ContentType(key) != writer.ParquetContentType {
			t.Errorf("%s: content type = %q", key, store.ContentType(key))
		}
	}
}

func TestImporter_SkipsExisting(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "spy.csv", []byte(sampleCSV))

	store := storage.NewMemory()
	key := Key("2019-03-01", "SPY")
	if err := store.Put(context.Background(), key, []byte("existing"), writer.ParquetContentType); err != nil {
		t.Fatal(err)
	}

	results, err := newImporter(t, store).Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !results[0].Skipped {
		t.Errorf("expected skip, got %+v", results[0])
	}

	data, _ := store.Get(context.Background(), key)
	if string(data) != "existing" {
		t.Error("existing object was overwritten")
	}
}

func TestImporter_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "spy.csv", []byte(sampleCSV))
	badExp := writeFile(t, dir, "qqq.csv", []byte(
		"date,symbol,type,expiration,strike\n2019-03-01,X,c,soon,1\n"))
	empty := writeFile(t, dir, "iwm.csv", []byte("date,symbol\n"))
	badGzip := writeFile(t, dir, "dia.csv.gz", []byte("not gzip"))

	store := storage.NewMemory()
	results, err := newImporter(t, store).Run(context.Background(),
		[]string{good, badExp, empty, badGzip})
	if err == nil {
		t.Fatal("expected joined error")
	}

	if results[0].Err != nil || results[0].Rows != 2 {
		t.Errorf("good file result = %+v", results[0])
	}
	for _, res := range results[1:] {
		if res.Err == nil {
			t.Errorf("%s: expected error", res.File)
		}
	}
	if keys := store.Keys(); len(keys) != 1 {
		t.Errorf("stored keys = %v, want only the good file", keys)
	}
}

func TestImporter_InvalidDate(t *testing.T) {
	tests := []struct {
		name string
		date string
	}{
		{"empty", ""},
		{"path traversal", "../../escaped"},
		{"wrong layout", "03/01/2019"},
		{"not a date", "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "aapl.csv", []byte(
				"date,symbol,type,expiration,strike\n"+tt.date+",AAPL190315C00180000,c,20190315,180\n"))

			store := storage.NewMemory()
			res := newImporter(t, store).ImportFile(context.Background(), path)
			if res.Err == nil {
				t.Fatalf("ImportFile() stored %q, want error", res.Key)
			}
			if keys := store.Keys(); len(keys) != 0 {
				t.Errorf("stored keys = %v, want none", keys)
			}
		})
	}
}

func TestImporter_LocalKeyStaysInPartition(t *testing.T) {
	root := t.TempDir()
	store := storage.NewLocal(root)

	path := writeFile(t, t.TempDir(), "spy.csv", []byte(sampleCSV))
	res := newImporter(t, store).ImportFile(context.Background(), path)
	if res.Err != nil {
		t.Fatalf("ImportFile() error = %v", res.Err)
	}
	if _, err := os.Stat(filepath.Join(root, "date=2019-03-01", "SPY.parquet")); err != nil {
		t.Errorf("artifact not under its date partition: %v", err)
	}
}

func TestNew_UnknownCompression(t *testing.T) {
	if _, err := New(Config{Compression: "lzma"}, storage.NewMemory(), nil); err == nil {
		t.Error("expected error for unknown compression")
	}
}
