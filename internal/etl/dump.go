package etl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BartekS5/sql2bq/pkg/models"
)

const runStampLayout = "20060102T150405Z"

// DumpPath names the raw dump of a table for one run.
func DumpPath(dir, table string, runTime time.Time) string {
	return filepath.Join(dir, fileStem(table, runTime)+".dump.json")
}

// LoadPath names the transformed load file of a table for one run.
func LoadPath(dir, table string, runTime time.Time) string {
	return filepath.Join(dir, fileStem(table, runTime)+".load.json")
}

func fileStem(table string, runTime time.Time) string {
	return models.FileSafeName(table) + "_" + runTime.UTC().Format(runStampLayout)
}

type dumpHeader struct {
	Columns []string `json:"columns"`
}

// atomicFile is written under a temporary name and renamed on Commit, so a
// reader never sees a partial file at the final path.
type atomicFile struct {
	path string
	tmp  string
	f    *os.File
	w    *bufio.Writer
}

func createAtomic(path string) (*atomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	return &atomicFile{path: path, tmp: tmp, f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

func (a *atomicFile) Commit() error {
	if err := a.w.Flush(); err != nil {
		a.Abort()
		return err
	}
	if err := a.f.Sync(); err != nil {
		a.Abort()
		return err
	}
	if err := a.f.Close(); err != nil {
		os.Remove(a.tmp)
		return err
	}
	if err := os.Rename(a.tmp, a.path); err != nil {
		os.Remove(a.tmp)
		return err
	}
	return nil
}

func (a *atomicFile) Abort() {
	a.f.Close()
	os.Remove(a.tmp)
}

// DumpWriter writes a header line with the column order, then one JSON
// array per row.
type DumpWriter struct {
	file *atomicFile
	enc  *json.Encoder
	rows int
}

func CreateDump(path string, columns []string) (*DumpWriter, error) {
	file, err := createAtomic(path)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	d := &DumpWriter{file: file, enc: json.NewEncoder(file.w)}
	if err := d.enc.Encode(dumpHeader{Columns: columns}); err != nil {
		file.Abort()
		return nil, fmt.Errorf("write dump header: %w", err)
	}
	return d, nil
}

func (d *DumpWriter) Write(values []any) error {
	if err := d.enc.Encode(values); err != nil {
		return fmt.Errorf("write dump row %d: %w", d.rows+1, err)
	}
	d.rows++
	return nil
}

func (d *DumpWriter) Rows() int { return d.rows }

func (d *DumpWriter) Commit() error {
	if err := d.file.Commit(); err != nil {
		return fmt.Errorf("commit dump file: %w", err)
	}
	return nil
}

func (d *DumpWriter) Abort() { d.file.Abort() }

// DumpReader streams RowRecords back out of a dump file. Numbers come back
// as json.Number so integers keep their precision.
type DumpReader struct {
	f       *os.File
	dec     *json.Decoder
	Columns []string
}

func OpenDump(path string) (*DumpReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump file: %w", err)
	}
	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()

	var h dumpHeader
	if err := dec.Decode(&h); err != nil {
		f.Close()
		return nil, fmt.Errorf("read dump header of %s: %w", path, err)
	}
	return &DumpReader{f: f, dec: dec, Columns: h.Columns}, nil
}

// Next returns io.EOF after the last row.
func (r *DumpReader) Next() (models.RowRecord, error) {
	var values []any
	if err := r.dec.Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return models.RowRecord{}, io.EOF
		}
		return models.RowRecord{}, fmt.Errorf("read dump row: %w", err)
	}
	if len(values) != len(r.Columns) {
		return models.RowRecord{}, fmt.Errorf("dump row has %d values, header has %d columns", len(values), len(r.Columns))
	}
	return models.RowRecord{Columns: r.Columns, Values: values}, nil
}

func (r *DumpReader) Close() error { return r.f.Close() }
