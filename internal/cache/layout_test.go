package cache

import (
	"errors"
	"testing"

	"github.com/hapi-cache/hapi-cache/internal/hapi"
)

func mustParse(t *testing.T, raw string) *hapi.Request {
	t.Helper()
	req, err := hapi.ParseRequest(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return req
}

func TestMapPathWholeDay(t *testing.T) {
	req := mustParse(t, "http://example.org/hapi/data?dataset=X&start=2020-01-01T00:00:00Z&stop=2020-01-02T00:00:00Z&parameters=B,A&format=binary&include=header")
	hit, err := MapPath(req, false, true)
	if err != nil {
		t.Fatalf("MapPath error: %v", err)
	}
	if len(hit.Granules) != 1 || hit.SubsetTime || hit.SubsetParameters {
		t.Fatalf("unexpected hit: %+v", hit)
	}
	g := hit.Granules[0]
	if g.Path != "http/example.org/hapi/data/X/2020/01/20200101,B,A.binary" {
		t.Fatalf("path mismatch: %s", g.Path)
	}
	if g.URL != "http://example.org/hapi/data?dataset=X&start=2020-01-01T00:00:00Z&stop=2020-01-02T00:00:00Z&parameters=B,A&format=binary" {
		t.Fatalf("url should drop include: %s", g.URL)
	}
}

func TestMapPathExactRange(t *testing.T) {
	req := mustParse(t, "http://example.org/hapi/data?dataset=X&start=2020-01-01T12:00Z&stop=2020-01-01T13:00Z")
	hit, err := MapPath(req, true, true)
	if err != nil {
		t.Fatalf("MapPath error: %v", err)
	}
	if len(hit.Granules) != 1 || hit.SubsetTime {
		t.Fatalf("unexpected hit: %+v", hit)
	}
	if p := hit.Granules[0].Path; p != "http/example.org/hapi/data/X/2020/01/20200101T120000Z_20200101T130000Z.csv" {
		t.Fatalf("path mismatch: %s", p)
	}
}

func TestMapPathCompositeUsesEachDaysMonth(t *testing.T) {
	req := mustParse(t, "https://cdaweb.example.org:8443/hapi/data?dataset=AC%20H0..MFI&start=2020-01-31T12:00:00Z&stop=2020-02-01T06:00:00Z")
	hit, err := MapPath(req, false, true)
	if err != nil {
		t.Fatalf("MapPath error: %v", err)
	}
	if !hit.SubsetTime || len(hit.Granules) != 2 {
		t.Fatalf("expected two day granules with time subsetting: %+v", hit)
	}
	want := []string{
		"https/cdaweb.example.org:8443/hapi/data/AC+H0.MFI/2020/01/20200131.csv",
		"https/cdaweb.example.org:8443/hapi/data/AC+H0.MFI/2020/02/20200201.csv",
	}
	for i, g := range hit.Granules {
		if g.Path != want[i] {
			t.Fatalf("granule %d path mismatch: %s", i, g.Path)
		}
	}
	if u := hit.Granules[0].URL; u != "https://cdaweb.example.org:8443/hapi/data?dataset=AC%20H0..MFI&start=2020-01-31T00:00:00Z&stop=2020-02-01T00:00:00Z" {
		t.Fatalf("day url mismatch: %s", u)
	}
}

func TestMapPathMetadata(t *testing.T) {
	info := mustParse(t, "http://example.org/hapi/info?dataset=X&parameters=a")
	hit, err := MapPath(info, true, false)
	if err != nil {
		t.Fatalf("MapPath error: %v", err)
	}
	g := hit.Granules[0]
	if g.Path != "http/example.org/hapi/info/X.json" || g.URL != "http://example.org/hapi/info?dataset=X" {
		t.Fatalf("info granule mismatch: %+v", g)
	}
	if !hit.SubsetParameters {
		t.Fatalf("inexact parameters should request subsetting")
	}

	catalog := mustParse(t, "http://example.org/hapi/catalog")
	hit, err = MapPath(catalog, true, true)
	if err != nil {
		t.Fatalf("MapPath error: %v", err)
	}
	if p := hit.Granules[0].Path; p != "http/example.org/hapi/catalog.json" {
		t.Fatalf("catalog path mismatch: %s", p)
	}
}

func TestMapPathRejectsBadInput(t *testing.T) {
	inverted := mustParse(t, "http://example.org/hapi/data?dataset=X&start=2020-01-02&stop=2020-01-01")
	if _, err := MapPath(inverted, false, true); !errors.Is(err, hapi.ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
	jsonFormat := mustParse(t, "http://example.org/hapi/data?dataset=X&start=2020-01-01&stop=2020-01-02&format=json")
	if _, err := MapPath(jsonFormat, false, true); !errors.Is(err, hapi.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSafeName(t *testing.T) {
	if got := SafeName("a b...c..d"); got != "a+b.c.d" {
		t.Fatalf("SafeName mismatch: %s", got)
	}
}
