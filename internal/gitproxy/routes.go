// Package gitproxy implements the git smart-HTTP v2 reverse proxy: it parses
// the push "update-requests" packet-line stream to enforce a
// single-allowed-ref policy before forwarding to a local repository or an
// upstream git server.
package gitproxy

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/harnessd/agentharness/internal/pktline"
	"github.com/harnessd/agentharness/internal/security"
)

const (
	serviceReceivePack = "git-receive-pack"
	serviceUploadPack  = "git-upload-pack"

	contentTypeReceiveAdvertisement = "application/x-git-receive-pack-advertisement"
	contentTypeUploadAdvertisement  = "application/x-git-upload-pack-advertisement"
	contentTypeReceiveResult        = "application/x-git-receive-pack-result"
	contentTypeUploadResult         = "application/x-git-upload-pack-result"
)

// Handler serves the three git smart-HTTP endpoints against behaviors
// produced by a BasicAuth middleware (see auth.go in the harness package).
type Handler struct {
	validator *security.CommandValidator
	client    *http.Client
	logger    *log.Logger
}

// NewHandler builds a Handler. client is used for ForwardToRemote requests;
// a sane default (no special timeout tuning — git subprocess/transport
// already governs its own pacing per spec.md §5) is used if nil.
func NewHandler(client *http.Client, logger *log.Logger) *Handler {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{validator: security.NewCommandValidator(), client: client, logger: logger}
}

// BehaviorFromContext extracts the Behavior attached by the auth layer. It
// panics if absent, mirroring the donor proxy's documented invariant that
// the Basic-auth validator MUST attach one before routing continues.
func BehaviorFromContext(ctx context.Context) Behavior {
	b, ok := ctx.Value(behaviorKey{}).(Behavior)
	if !ok {
		panic("gitproxy: request reached routing without a Behavior in context")
	}
	return b
}

type behaviorKey struct{}

// WithBehavior returns a context carrying b, for use by the auth layer.
func WithBehavior(ctx context.Context, b Behavior) context.Context {
	return context.WithValue(ctx, behaviorKey{}, b)
}

// InfoRefs serves GET /info/refs?service=<name>.
func (h *Handler) InfoRefs(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service != serviceReceivePack && service != serviceUploadPack {
		http.Error(w, "Unsupported or missing service", http.StatusBadRequest)
		return
	}
	behavior := BehaviorFromContext(r.Context())

	switch behavior.Forward.Kind {
	case ForwardToRemote:
		h.remoteInfoRefs(w, r, behavior.Forward, service)
	default:
		h.localInfoRefs(w, r, behavior.Forward, service)
	}
}

func (h *Handler) localInfoRefs(w http.ResponseWriter, r *http.Request, fwd Forward, service string) {
	contentType := contentTypeUploadAdvertisement
	if service == serviceReceivePack {
		contentType = contentTypeReceiveAdvertisement
	}

	if err := h.validator.ValidateCommand(service, []string{"--advertise-refs", fwd.Path}); err != nil {
		h.logger.Printf("gitproxy: rejecting info/refs command: %v", err)
		http.Error(w, "Error processing info/refs", http.StatusInternalServerError)
		return
	}

	cmd := exec.CommandContext(r.Context(), service, "--advertise-refs", fwd.Path)
	stdout, err := cmd.Output()
	if err != nil {
		h.logger.Printf("gitproxy: %s --advertise-refs failed: %v", service, err)
		http.Error(w, "Error processing info/refs", http.StatusInternalServerError)
		return
	}

	adv, err := pktline.Advertisement(service, stdout)
	if err != nil {
		h.logger.Printf("gitproxy: failed to build advertisement: %v", err)
		http.Error(w, "Error processing info/refs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(adv)
}

func (h *Handler) remoteInfoRefs(w http.ResponseWriter, r *http.Request, fwd Forward, service string) {
	upstream := strings.TrimRight(fwd.URL, "/") + "/info/refs?" + r.URL.RawQuery
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		http.Error(w, "Error forwarding request", http.StatusInternalServerError)
		return
	}
	req.SetBasicAuth(fwd.BasicAuthUser, fwd.BasicAuthPass)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Printf("gitproxy: error forwarding info/refs: %v", err)
		http.Error(w, "Error forwarding request", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	relayResponse(w, resp, "application/octet-stream")
}

// GitReceivePack serves POST /git-receive-pack.
func (h *Handler) GitReceivePack(w http.ResponseWriter, r *http.Request) {
	behavior := BehaviorFromContext(r.Context())

	body, err := decompressIfGzip(r)
	if err != nil {
		http.Error(w, "Decompression failed", http.StatusBadRequest)
		return
	}

	mods, parseErr := ParseUpdateRequests(body)
	if denial := enforcementDenial(mods, parseErr, behavior.AllowedRef); denial != "" {
		h.denyPush(w, denial)
		return
	}

	switch behavior.Forward.Kind {
	case ForwardToRemote:
		h.remoteReceivePack(w, r, behavior.Forward, body)
	default:
		h.localReceivePack(w, r, behavior.Forward, body)
	}
}

// enforcementDenial evaluates the fail-closed policy in spec.md §4.3's
// exact order: any Create denies, any Delete denies, any Update on a ref
// other than allowedRef denies, and a parse error itself denies. It returns
// the empty string when the push is accepted.
func enforcementDenial(mods []RefModification, parseErr error, allowedRef string) string {
	if parseErr != nil {
		return "Invalid push data"
	}
	for _, m := range mods {
		switch m.Kind {
		case Create:
			return "Push not allowed to create this ref"
		case Delete:
			return "Push not allowed to delete this ref"
		case Update:
			if m.RefName != allowedRef {
				return "Push not allowed to modify this ref"
			}
		}
	}
	return ""
}

// denyPush writes a push-policy denial. Per spec.md §4.3, git clients expect
// HTTP 200 with an in-band side-band error here, not a transport error.
func (h *Handler) denyPush(w http.ResponseWriter, message string) {
	frame, err := pktline.SideBandError(message)
	if err != nil {
		// Framing a short ASCII message cannot overflow MaxLength; treat as
		// unreachable but fail safe rather than panic on a response path.
		h.logger.Printf("gitproxy: failed to frame denial %q: %v", message, err)
		http.Error(w, "Error processing push", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeReceiveResult)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

func (h *Handler) localReceivePack(w http.ResponseWriter, r *http.Request, fwd Forward, body []byte) {
	if err := h.validator.ValidateCommand(serviceReceivePack, []string{"--stateless-rpc", fwd.Path}); err != nil {
		h.logger.Printf("gitproxy: rejecting receive-pack command: %v", err)
		h.denyPush(w, "Error spawning git-receive-pack")
		return
	}

	cmd := exec.CommandContext(r.Context(), serviceReceivePack, "--stateless-rpc", fwd.Path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.denyPush(w, "Error spawning git-receive-pack")
		return
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		h.logger.Printf("gitproxy: failed to spawn git-receive-pack: %v", err)
		h.denyPush(w, "Error spawning git-receive-pack")
		return
	}

	if _, err := stdin.Write(body); err != nil {
		h.logger.Printf("gitproxy: error writing to git-receive-pack stdin: %v", err)
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			h.denyPush(w, "git-receive-pack failed")
			return
		}
		h.logger.Printf("gitproxy: error waiting for git-receive-pack: %v", err)
		h.denyPush(w, "Error processing push")
		return
	}

	w.Header().Set("Content-Type", contentTypeReceiveResult)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stdout.Bytes())
}

func (h *Handler) remoteReceivePack(w http.ResponseWriter, r *http.Request, fwd Forward, body []byte) {
	upstream := strings.TrimRight(fwd.URL, "/") + "/git-receive-pack"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, bytes.NewReader(body))
	if err != nil {
		h.denyPush(w, "Error forwarding push")
		return
	}
	req.SetBasicAuth(fwd.BasicAuthUser, fwd.BasicAuthPass)
	req.Header.Set("Content-Type", "application/x-git-receive-pack-request")

	resp, err := h.client.Do(req)
	if err != nil {
		// Unlike upload-pack, transport failure here is still reported
		// in-band (HTTP 200 + pkt-line error), per original_source's
		// asymmetric treatment of receive-pack vs upload-pack errors.
		h.logger.Printf("gitproxy: error forwarding push: %v", err)
		h.denyPush(w, "Error forwarding push")
		return
	}
	defer resp.Body.Close()

	relayResponse(w, resp, contentTypeReceiveResult)
}

// GitUploadPack serves POST /git-upload-pack. Read-only: no parsing, no
// ref policy.
func (h *Handler) GitUploadPack(w http.ResponseWriter, r *http.Request) {
	behavior := BehaviorFromContext(r.Context())

	body, err := decompressIfGzip(r)
	if err != nil {
		http.Error(w, "Decompression failed", http.StatusBadRequest)
		return
	}

	switch behavior.Forward.Kind {
	case ForwardToRemote:
		h.remoteUploadPack(w, r, behavior.Forward, body)
	default:
		h.localUploadPack(w, r, behavior.Forward, body)
	}
}

func (h *Handler) localUploadPack(w http.ResponseWriter, r *http.Request, fwd Forward, body []byte) {
	if err := h.validator.ValidateCommand(serviceUploadPack, []string{"--stateless-rpc", fwd.Path}); err != nil {
		h.logger.Printf("gitproxy: rejecting upload-pack command: %v", err)
		http.Error(w, "Error spawning git-upload-pack", http.StatusInternalServerError)
		return
	}

	cmd := exec.CommandContext(r.Context(), serviceUploadPack, "--stateless-rpc", fwd.Path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		http.Error(w, "Error spawning git-upload-pack", http.StatusInternalServerError)
		return
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		h.logger.Printf("gitproxy: failed to spawn git-upload-pack: %v", err)
		http.Error(w, "Error spawning git-upload-pack", http.StatusInternalServerError)
		return
	}

	if _, err := stdin.Write(body); err != nil {
		h.logger.Printf("gitproxy: error writing to git-upload-pack stdin: %v", err)
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			http.Error(w, "git-upload-pack failed", http.StatusInternalServerError)
			return
		}
		h.logger.Printf("gitproxy: error waiting for git-upload-pack: %v", err)
		http.Error(w, "Error processing fetch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeUploadResult)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stdout.Bytes())
}

func (h *Handler) remoteUploadPack(w http.ResponseWriter, r *http.Request, fwd Forward, body []byte) {
	upstream := strings.TrimRight(fwd.URL, "/") + "/git-upload-pack"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "Error forwarding fetch", http.StatusInternalServerError)
		return
	}
	req.SetBasicAuth(fwd.BasicAuthUser, fwd.BasicAuthPass)
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")

	resp, err := h.client.Do(req)
	if err != nil {
		// Unlike receive-pack, upload-pack errors are plain HTTP errors: no
		// in-band protocol convention requires a 200 here.
		h.logger.Printf("gitproxy: error forwarding fetch: %v", err)
		http.Error(w, "Error forwarding fetch", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	relayResponse(w, resp, contentTypeUploadResult)
}

func decompressIfGzip(r *http.Request) ([]byte, error) {
	body := r.Body
	defer body.Close()

	if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		return io.ReadAll(body)
	}
	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func relayResponse(w http.ResponseWriter, resp *http.Response, defaultContentType string) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// DefaultHTTPClient is a reasonable shared client for ForwardToRemote calls.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Minute}
}
