package clickhouse

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch.local",
		Port:        9000,
		Database:    "prices",
		User:        "writer",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 2 * time.Minute,
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9000" || u.Path != "/prices" {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	if pw, _ := u.User.Password(); u.User.Username() != "writer" || pw != "p@ss" {
		t.Fatalf("credentials not preserved: %s", dsn)
	}
	if u.Query().Get("dial_timeout") != "5s" || u.Query().Get("max_execution_time") != "120" {
		t.Fatalf("unexpected settings %v", u.Query())
	}
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "h", Port: 8123, Database: "d", UseHTTP: true})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme %q, want http", u.Scheme)
	}
}
