package hapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ErrMalformedInfo 表示 info 描述缺少计算记录长度或过滤头部所需的字段。
var ErrMalformedInfo = errors.New("malformed info descriptor")

// headerOptions 与上游 info 的惯例一致：4 空格缩进，保留键顺序。
var headerOptions = &pretty.Options{Width: 80, Prefix: "", Indent: "    ", SortKeys: false}

func parameterArray(info []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(info) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedInfo)
	}
	params := gjson.GetBytes(info, "parameters")
	if !params.IsArray() {
		return nil, fmt.Errorf("%w: parameters array missing", ErrMalformedInfo)
	}
	list := params.Array()
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: parameters array empty", ErrMalformedInfo)
	}
	return list, nil
}

// elementCount 是 length（缺省 1）乘以 size 中各维度。
func elementCount(p gjson.Result) (int, error) {
	n := 1
	if l := p.Get("length"); l.Exists() {
		n = int(l.Int())
	}
	if size := p.Get("size"); size.Exists() {
		if !size.IsArray() {
			return 0, fmt.Errorf("%w: size of %q is not an array", ErrMalformedInfo, p.Get("name").String())
		}
		for _, dim := range size.Array() {
			n *= int(dim.Int())
		}
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: non-positive width for %q", ErrMalformedInfo, p.Get("name").String())
	}
	return n, nil
}

// BytesPerRecord 计算二进制格式下每条记录的字节数。isotime/string 每字符 1 字节，
// double 8 字节，int 4 字节；缺少 type 或出现未知类型都视为描述错误。
func BytesPerRecord(info []byte) (int, error) {
	params, err := parameterArray(info)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range params {
		name := p.Get("name").String()
		typ := p.Get("type")
		if !typ.Exists() {
			return 0, fmt.Errorf("%w: parameter %q has no type", ErrMalformedInfo, name)
		}
		count, err := elementCount(p)
		if err != nil {
			return 0, err
		}
		switch typ.String() {
		case "isotime", "string":
			if !p.Get("length").Exists() {
				return 0, fmt.Errorf("%w: %s parameter %q has no length", ErrMalformedInfo, typ.String(), name)
			}
			total += count
		case "double":
			total += 8 * count
		case "int":
			total += 4 * count
		default:
			return 0, fmt.Errorf("%w: parameter %q has unsupported type %q", ErrMalformedInfo, name, typ.String())
		}
	}
	return total, nil
}

// TimeLength 返回第一个参数（时间）的字节宽度。
func TimeLength(info []byte) (int, error) {
	params, err := parameterArray(info)
	if err != nil {
		return 0, err
	}
	l := params[0].Get("length")
	if !l.Exists() || l.Int() <= 0 {
		return 0, fmt.Errorf("%w: time parameter has no length", ErrMalformedInfo)
	}
	return int(l.Int()), nil
}

// SubsetHeader 只保留请求的参数（时间参数始终保留在首位），并以 4 空格缩进输出。
// names 为空时保留全部参数；描述中不存在的名字被忽略。
func SubsetHeader(info []byte, names []string) ([]byte, error) {
	params, err := parameterArray(info)
	if err != nil {
		return nil, err
	}
	out := info
	if len(names) > 0 {
		wanted := make(map[string]struct{}, len(names))
		for _, n := range names {
			wanted[strings.TrimSpace(n)] = struct{}{}
		}
		kept := make([]string, 0, len(names)+1)
		for i, p := range params {
			if _, ok := wanted[p.Get("name").String()]; i == 0 || ok {
				kept = append(kept, p.Raw)
			}
		}
		out, err = sjson.SetRawBytes(info, "parameters", []byte("["+strings.Join(kept, ",")+"]"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInfo, err)
		}
	}
	return pretty.PrettyOptions(out, headerOptions), nil
}

// ColumnIndices 返回 CSV 中需要保留的列号。第 0 列（时间）总是保留；
// 带 size 的参数在 CSV 中占多列，全部保留。
func ColumnIndices(info []byte, names []string) ([]int, error) {
	params, err := parameterArray(info)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = struct{}{}
	}
	columns := []int{0}
	col := 0
	for i, p := range params {
		width := 1
		if size := p.Get("size"); size.IsArray() {
			for _, dim := range size.Array() {
				width *= int(dim.Int())
			}
		}
		if _, ok := wanted[p.Get("name").String()]; ok && i > 0 {
			for c := col; c < col+width; c++ {
				columns = append(columns, c)
			}
		}
		col += width
	}
	return columns, nil
}
