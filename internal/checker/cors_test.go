package checker

import (
	"net/http"
	"testing"
)

func TestAnalyzeCORS_AllowsAnyOrigin(t *testing.T) {
	headers := http.Header{
		"Access-Control-Allow-Origin":      []string{"*"},
		"Access-Control-Allow-Credentials": []string{"true"},
	}

	report := AnalyzeCORS(headers, "https://attacker.example")
	if report == nil {
		t.Fatal("expected CORS report")
	}
	if !report.AllowsAnyOrigin {
		t.Error("expected AllowsAnyOrigin to be true")
	}
	if !report.AllowCredentials {
		t.Error("expected AllowCredentials to be true")
	}
	if !report.Risky() {
		t.Error("expected wildcard with credentials to be risky")
	}
	if len(report.Issues) != 2 {
		t.Errorf("expected 2 issues, got %v", report.Issues)
	}
}

func TestAnalyzeCORS_ReflectedOrigin(t *testing.T) {
	headers := http.Header{
		"Access-Control-Allow-Origin":      []string{"https://attacker.example"},
		"Access-Control-Allow-Credentials": []string{"true"},
		"Vary":                             []string{"Accept-Encoding, Origin"},
	}

	report := AnalyzeCORS(headers, "https://attacker.example")
	if report == nil || !report.ReflectsOrigin {
		t.Fatalf("expected reflected origin, got %+v", report)
	}
	if !report.Risky() {
		t.Error("expected reflected origin with credentials to be risky")
	}
}

func TestAnalyzeCORS_MissingHeader(t *testing.T) {
	if report := AnalyzeCORS(http.Header{}, "https://attacker.example"); report != nil {
		t.Fatalf("expected nil report, got %+v", report)
	}
}

func TestAnalyzeCORS_NoIssues(t *testing.T) {
	headers := http.Header{
		"Access-Control-Allow-Origin": []string{"https://example.com"},
	}
	if report := AnalyzeCORS(headers, "https://attacker.example"); report != nil {
		t.Fatalf("expected nil report, got %+v", report)
	}
}

func TestCORSReport_RiskyNil(t *testing.T) {
	var report *CORSReport
	if report.Risky() {
		t.Error("nil report should not be risky")
	}
}
