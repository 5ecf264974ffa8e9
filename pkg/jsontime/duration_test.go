package jsontime

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationJSON(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"1m30s"` {
		t.Fatalf("Marshal() = %s, want \"1m30s\"", data)
	}

	var back Duration
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back != d {
		t.Fatalf("round trip = %v, want %v", back, d)
	}
}

func TestDurationJSONAcceptsNanoseconds(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte("1500000000"), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.Duration() != 1500*time.Millisecond {
		t.Fatalf("got %v, want 1.5s", d.Duration())
	}
}

func TestDurationJSONNull(t *testing.T) {
	d := Duration(time.Second)
	if err := json.Unmarshal([]byte("null"), &d); err != nil {
		t.Fatalf("Unmarshal(null) error = %v", err)
	}
	if d.Duration() != time.Second {
		t.Fatalf("null overwrote value: %v", d)
	}
}

func TestDurationJSONInvalid(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatal("Unmarshal(\"soon\") succeeded, want error")
	}
}

func TestDurationYAML(t *testing.T) {
	var v struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 15s\n"), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v.Timeout.Duration() != 15*time.Second {
		t.Fatalf("timeout = %v, want 15s", v.Timeout.Duration())
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != "timeout: 15s\n" {
		t.Fatalf("Marshal() = %q", out)
	}
}

func TestDurationYAMLAcceptsNanoseconds(t *testing.T) {
	var v struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 1000000000\n"), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v.Timeout.Duration() != time.Second {
		t.Fatalf("timeout = %v, want 1s", v.Timeout.Duration())
	}
}

func TestDurationYAMLInvalid(t *testing.T) {
	var v struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: whenever\n"), &v); err == nil {
		t.Fatal("Unmarshal(whenever) succeeded, want error")
	}
}
