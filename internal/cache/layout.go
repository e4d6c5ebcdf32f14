package cache

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/hapi-cache/hapi-cache/internal/hapi"
)

// Granule 是一个缓存文件及其缺失时用来填充它的远端子请求。
type Granule struct {
	// Path 是相对缓存根目录的 slash 路径。
	Path string
	URL  string
	// Start/Stop 是该文件覆盖的时间范围；元数据文件为零值。
	Start time.Time
	Stop  time.Time
}

// Hit 是 MapPath 的结果，返回后不再修改。Granules 按时间先后排列，
// 文件与子请求一一对应。
type Hit struct {
	Granules         []Granule
	SubsetTime       bool
	SubsetParameters bool
}

var dotRuns = regexp.MustCompile(`\.\.+`)

// SafeName 把数据集或参数名变成既可读又安全的文件名片段：空格变 +，连续的点合并为一个。
func SafeName(name string) string {
	return dotRuns.ReplaceAllString(strings.ReplaceAll(name, " ", "+"), ".")
}

// MapPath 计算请求对应的缓存文件。exactTime 为 true 时非整日请求映射到字面
// start_stop 文件；否则展开为逐日文件并要求时间过滤。参数超集裁剪没有实现，
// exactParams 只影响元数据的 SubsetParameters 标志。
func MapPath(req *hapi.Request, exactTime, exactParams bool) (Hit, error) {
	endpointDir := hostDir(req)
	if req.Endpoint.IsMetadata() {
		var file, fetch string
		if req.Endpoint == hapi.EndpointInfo {
			file = path.Join(endpointDir, SafeName(req.Dataset)+".json")
			fetch = req.WithoutKeys("parameters", "include")
		} else {
			file = endpointDir + ".json"
			fetch = req.String()
		}
		return Hit{
			Granules:         []Granule{{Path: file, URL: fetch}},
			SubsetTime:       !exactTime,
			SubsetParameters: !exactParams,
		}, nil
	}

	format, err := req.DataFormat()
	if err != nil {
		return Hit{}, err
	}
	start, err := hapi.ParseTime(req.Start)
	if err != nil {
		return Hit{}, fmt.Errorf("%w: start: %v", hapi.ErrMalformedRequest, err)
	}
	stop, err := hapi.ParseTime(req.Stop)
	if err != nil {
		return Hit{}, fmt.Errorf("%w: stop: %v", hapi.ErrMalformedRequest, err)
	}
	if !start.Before(stop) {
		return Hit{}, fmt.Errorf("%w: start %s is not before stop %s", hapi.ErrMalformedRequest, req.Start, req.Stop)
	}

	params := SafeName(req.Parameters)
	if params != "" {
		params = "," + params
	}
	suffix := params + "." + string(format)
	datasetDir := path.Join(endpointDir, SafeName(req.Dataset))
	direct := req.WithoutKeys("include")

	if hapi.IsWholeDay(start, stop) {
		return Hit{Granules: []Granule{{
			Path:  path.Join(monthDir(datasetDir, start), hapi.DayStamp(start)+suffix),
			URL:   direct,
			Start: start,
			Stop:  stop,
		}}}, nil
	}

	if exactTime {
		return Hit{Granules: []Granule{{
			Path:  path.Join(monthDir(datasetDir, start), hapi.RangeStamp(start)+"_"+hapi.RangeStamp(stop)+suffix),
			URL:   direct,
			Start: start,
			Stop:  stop,
		}}}, nil
	}

	days := hapi.Days(start, stop)
	granules := make([]Granule, 0, len(days))
	for _, day := range days {
		next := day.AddDate(0, 0, 1)
		granules = append(granules, Granule{
			Path:  path.Join(monthDir(datasetDir, day), hapi.DayStamp(day)+suffix),
			URL:   req.DayURL(hapi.DayISO(day), hapi.DayISO(next)),
			Start: day,
			Stop:  next,
		})
	}
	return Hit{Granules: granules, SubsetTime: true}, nil
}

// hostDir 返回 <protocol>/<host[:port]>/<hapi-path>。
func hostDir(req *hapi.Request) string {
	return path.Join(req.URL.Scheme, req.URL.Host, path.Clean("/"+req.URL.Path))
}

func monthDir(datasetDir string, t time.Time) string {
	return path.Join(datasetDir, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())))
}
