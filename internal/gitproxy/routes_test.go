package gitproxy

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harnessd/agentharness/internal/pktline"
)

func withBehavior(r *http.Request, b Behavior) *http.Request {
	return r.WithContext(WithBehavior(r.Context(), b))
}

func TestGitReceivePackDeniesCreate(t *testing.T) {
	h := NewHandler(nil, nil)
	body := buildCommandList(t, []string{
		ZeroID + " 1111111111111111111111111111111111111111 refs/heads/allow",
	})

	req := httptest.NewRequest(http.MethodPost, "/git-receive-pack", strings.NewReader(string(body)))
	req = withBehavior(req, Behavior{AllowedRef: "refs/heads/allow", Forward: LocalForward("/tmp/repo")})
	rec := httptest.NewRecorder()

	h.GitReceivePack(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertSideBandMessage(t, rec.Body.Bytes(), "Push not allowed to create this ref")
}

func TestGitReceivePackDeniesForeignUpdate(t *testing.T) {
	h := NewHandler(nil, nil)
	a := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	b := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	body := buildCommandList(t, []string{a + " " + b + " refs/heads/other"})

	req := httptest.NewRequest(http.MethodPost, "/git-receive-pack", strings.NewReader(string(body)))
	req = withBehavior(req, Behavior{AllowedRef: "refs/heads/allow", Forward: LocalForward("/tmp/repo")})
	rec := httptest.NewRecorder()

	h.GitReceivePack(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertSideBandMessage(t, rec.Body.Bytes(), "Push not allowed to modify this ref")
}

func TestGitReceivePackDeniesDelete(t *testing.T) {
	h := NewHandler(nil, nil)
	a := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	body := buildCommandList(t, []string{a + " " + ZeroID + " refs/heads/allow"})

	req := httptest.NewRequest(http.MethodPost, "/git-receive-pack", strings.NewReader(string(body)))
	req = withBehavior(req, Behavior{AllowedRef: "refs/heads/allow", Forward: LocalForward("/tmp/repo")})
	rec := httptest.NewRecorder()

	h.GitReceivePack(rec, req)

	assertSideBandMessage(t, rec.Body.Bytes(), "Push not allowed to delete this ref")
}

func TestGitReceivePackDeniesParseError(t *testing.T) {
	h := NewHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/git-receive-pack", strings.NewReader("not a valid pkt-line stream"))
	req = withBehavior(req, Behavior{AllowedRef: "refs/heads/allow", Forward: LocalForward("/tmp/repo")})
	rec := httptest.NewRecorder()

	h.GitReceivePack(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertSideBandMessage(t, rec.Body.Bytes(), "Invalid push data")
}

func TestEnforcementAcceptsOnlyMatchingUpdate(t *testing.T) {
	a := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	b := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	mods := []RefModification{classify(a, b, "refs/heads/allow")}
	if denial := enforcementDenial(mods, nil, "refs/heads/allow"); denial != "" {
		t.Fatalf("expected acceptance, got denial: %q", denial)
	}
}

func assertSideBandMessage(t *testing.T, frame []byte, want string) {
	t.Helper()
	dec := pktline.NewDecoder(bytes.NewReader(frame))
	line, err := dec.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if line.Payload[0] != 0x03 {
		t.Fatalf("expected side-band error byte, got %x", line.Payload[0])
	}
	got := string(line.Payload[1:])
	if got != "error: "+want+"\n" {
		t.Fatalf("unexpected denial message: got %q want %q", got, want)
	}
}
