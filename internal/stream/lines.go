package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/hapi-cache/hapi-cache/internal/hapi"
)

// CSVParameterSubset 把每条数据记录改写为只含 columns 中的列（逗号连接，保留行尾）。
// columns 由 hapi.ColumnIndices 计算，时间列 0 总在其中。非数据行原样通过。
func CSVParameterSubset(src Provider, columns []int) Provider {
	return mapLines(src, func(line []byte) []byte {
		if !hapi.IsRecordStart(line) {
			return line
		}
		return selectColumns(line, columns)
	})
}

// Header 把 src 的每一行加上 "# " 前缀，缺少结尾换行时补齐。
func Header(src Provider) Provider {
	return mapLines(src, func(line []byte) []byte {
		out := make([]byte, 0, len(line)+3)
		out = append(out, '#', ' ')
		out = append(out, line...)
		if !bytes.HasSuffix(out, []byte("\n")) {
			out = append(out, '\n')
		}
		return out
	})
}

func mapLines(src Provider, fn func([]byte) []byte) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		return &lineMapper{src: rc, br: bufio.NewReaderSize(rc, readBufferSize), fn: fn}, nil
	})
}

type lineMapper struct {
	src     io.ReadCloser
	br      *bufio.Reader
	fn      func([]byte) []byte
	pending []byte
	err     error
}

func (m *lineMapper) Read(p []byte) (int, error) {
	for len(m.pending) == 0 {
		if m.err != nil {
			return 0, m.err
		}
		line, err := m.br.ReadBytes('\n')
		if len(line) > 0 {
			m.pending = m.fn(line)
		}
		m.err = err
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *lineMapper) Close() error {
	return m.src.Close()
}

// selectColumns 按列号挑选字段。引号内的逗号不作分隔。
func selectColumns(line []byte, columns []int) []byte {
	body := line
	var ending []byte
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		body, ending = line[:i], line[i:]
	}

	var fields [][]byte
	inQuote := false
	begin := 0
	for i, b := range body {
		switch {
		case b == '"':
			inQuote = !inQuote
		case b == ',' && !inQuote:
			fields = append(fields, body[begin:i])
			begin = i + 1
		}
	}
	fields = append(fields, body[begin:])

	out := make([]byte, 0, len(line))
	first := true
	for _, c := range columns {
		if c < 0 || c >= len(fields) {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		out = append(out, fields[c]...)
		first = false
	}
	return append(out, ending...)
}
