package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
CacheDir = "./data"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	path := writeTempConfig(t, "CacheDir = \"./data\"\nUpstreamTimeout = 15\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.UpstreamTimeout.DurationValue().Seconds() != 15 {
		t.Fatalf("整数秒应被解析，得到 %v", cfg.Global.UpstreamTimeout.DurationValue())
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90")); err != nil || d.DurationValue().Seconds() != 90 {
		t.Fatalf("纯数字应按秒解析: %v %v", d, err)
	}
	if err := d.UnmarshalText([]byte("2m")); err != nil || d.DurationValue().Minutes() != 2 {
		t.Fatalf("Go duration 应被接受: %v %v", d, err)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Fatalf("非法值应报错")
	}
}
