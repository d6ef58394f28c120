package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// countingReader：记录已读字节数，用于进度百分比
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// rowReader：按表头把 CSV 行转为 列名→值
// 表头先按 alias 改名，再在末尾补上 missing 列；短行以空串补齐，多余字段忽略
type rowReader struct {
	f      *os.File
	cr     *countingReader
	r      *csv.Reader
	header []string
	size   int64
}

func openRows(path string, alias map[string]string, missing []string) (*rowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	cr := &countingReader{r: f}
	r := csv.NewReader(cr)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.TrimLeadingSpace = true
	head, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: empty file", path)
		}
		return nil, fmt.Errorf("%s: header: %w", path, err)
	}
	header := make([]string, 0, len(head)+len(missing))
	for i, h := range head {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if a, ok := alias[h]; ok {
			h = a
		}
		header = append(header, h)
	}
	header = append(header, missing...)
	return &rowReader{f: f, cr: cr, r: r, header: header, size: st.Size()}, nil
}

// Next：读取下一行；文件结束返回 io.EOF
func (rr *rowReader) Next() (map[string]string, error) {
	rec, err := rr.r.Read()
	if err != nil {
		return nil, err
	}
	row := make(map[string]string, len(rr.header))
	for i, h := range rr.header {
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}
	return row, nil
}

// Line：当前行号（含表头）
func (rr *rowReader) Line() int {
	line, _ := rr.r.FieldPos(0)
	return line
}

// Progress：按已读字节估算的完成百分比
func (rr *rowReader) Progress() float64 {
	return CalculatePercentage(float64(rr.cr.n), float64(rr.size))
}

func (rr *rowReader) Close() error { return rr.f.Close() }
