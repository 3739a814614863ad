package gitproxy

import (
	"bytes"
	"fmt"
	"io"
	"regexp"

	"github.com/harnessd/agentharness/internal/pktline"
)

// ZeroID is the all-zero object id git uses to denote the absence of a ref
// (the "old" side of a create, or the "new" side of a delete).
const ZeroID = "0000000000000000000000000000000000000000"

var hexOID = regexp.MustCompile(`^[0-9a-f]{40}$`)

// RefModKind classifies a parsed ref modification.
type RefModKind int

const (
	// Create is recorded when the old id is ZeroID.
	Create RefModKind = iota
	// Delete is recorded when the new id is ZeroID.
	Delete
	// Update is recorded when neither id is ZeroID.
	Update
)

// RefModification is one parsed push command.
type RefModification struct {
	Kind    RefModKind
	OldID   string
	NewID   string
	RefName string
}

// classify builds a RefModification from its raw old/new ids and ref name,
// applying the zero-id classification rule from the wire grammar.
func classify(oldID, newID, refName string) RefModification {
	switch {
	case oldID == ZeroID:
		return RefModification{Kind: Create, NewID: newID, RefName: refName}
	case newID == ZeroID:
		return RefModification{Kind: Delete, OldID: oldID, RefName: refName}
	default:
		return RefModification{Kind: Update, OldID: oldID, NewID: newID, RefName: refName}
	}
}

// ParseError is returned for any grammar violation in the update-requests
// stream. The push-command parser is a security boundary: it must consume
// the entire modification stream or fail, never silently drop a command.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "gitproxy: " + e.Reason }

func parseErr(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// ParseUpdateRequests parses the raw (already gzip-decompressed) body of a
// git-receive-pack request per the update-requests grammar:
//
//	update-requests = *shallow ( command-list | push-cert )
//
// It returns the ordered list of ref modifications, or a ParseError on any
// grammar violation.
func ParseUpdateRequests(body []byte) ([]RefModification, error) {
	dec := pktline.NewDecoder(bytes.NewReader(body))

	var first *pktline.Line
	for {
		line, err := dec.ReadLine()
		if err == io.EOF {
			return nil, parseErr("unexpected end of input")
		}
		if err != nil {
			return nil, parseErr("malformed pkt-line: %v", err)
		}
		if line.Kind == pktline.FlushPkt {
			// A bare flush with no commands at all is not valid update-requests.
			return nil, parseErr("empty update-requests")
		}
		if isShallowLine(line.Payload) {
			continue
		}
		l := line
		first = &l
		break
	}

	if bytes.HasPrefix(first.Payload, []byte("push-cert\x00")) {
		return parsePushCert(first.Payload, dec)
	}
	return parseCommandList(first.Payload, dec)
}

func isShallowLine(payload []byte) bool {
	const prefix = "shallow "
	if !bytes.HasPrefix(payload, []byte(prefix)) {
		return false
	}
	rest := payload[len(prefix):]
	return hexOID.Match(rest)
}

// parseCommandList parses the command-list grammar:
//
//	command-list = PKT-LINE(command NUL capability-list)
//	               *PKT-LINE(command)
//	               flush-pkt
func parseCommandList(firstLine []byte, dec *pktline.Decoder) ([]RefModification, error) {
	nul := bytes.IndexByte(firstLine, 0)
	if nul < 0 {
		return nil, parseErr("first command line missing capability separator")
	}
	cmd, err := parseCommandStr(string(firstLine[:nul]))
	if err != nil {
		return nil, err
	}
	mods := []RefModification{cmd}

	for {
		line, err := dec.ReadLine()
		if err == io.EOF {
			return nil, parseErr("command-list missing trailing flush")
		}
		if err != nil {
			return nil, parseErr("malformed pkt-line: %v", err)
		}
		if line.Kind == pktline.FlushPkt {
			return mods, nil
		}
		if bytes.IndexByte(line.Payload, 0) >= 0 {
			return nil, parseErr("unexpected capability separator in subsequent command")
		}
		cmd, err := parseCommandStr(string(line.Payload))
		if err != nil {
			return nil, err
		}
		mods = append(mods, cmd)
	}
}

// parseCommandStr parses "<40-hex old> SP <40-hex new> SP <ref-name>". The
// ref name is everything remaining after the second space, including any
// embedded spaces.
func parseCommandStr(s string) (RefModification, error) {
	if len(s) < 83 || s[40] != ' ' || s[81] != ' ' {
		return RefModification{}, parseErr("malformed command line: %q", s)
	}
	oldID := s[:40]
	newID := s[41:81]
	refName := s[82:]
	if !hexOID.MatchString(oldID) || !hexOID.MatchString(newID) {
		return RefModification{}, parseErr("malformed object id in command line: %q", s)
	}
	if refName == "" {
		return RefModification{}, parseErr("empty ref name in command line: %q", s)
	}
	return classify(oldID, newID, refName), nil
}

// parsePushCert parses the push-cert grammar. Only the command lines nested
// inside the certificate body are returned as RefModifications; the
// certificate envelope (pusher/pushee/nonce/push-options/gpg-signature) is
// validated for shape but otherwise discarded.
func parsePushCert(firstLine []byte, dec *pktline.Decoder) ([]RefModification, error) {
	next := func() (string, error) {
		line, err := dec.ReadLine()
		if err == io.EOF {
			return "", parseErr("push-cert ended unexpectedly")
		}
		if err != nil {
			return "", parseErr("malformed pkt-line: %v", err)
		}
		if line.Kind == pktline.FlushPkt {
			return "", parseErr("unexpected flush inside push-cert")
		}
		return string(line.Payload), nil
	}

	version, err := next()
	if err != nil {
		return nil, err
	}
	if version != "certificate version 0.1\n" {
		return nil, parseErr("unsupported push-cert version: %q", version)
	}

	requirePrefix := func(label, prefix string) error {
		l, err := next()
		if err != nil {
			return err
		}
		if !bytes.HasPrefix([]byte(l), []byte(prefix)) || len(l) <= len(prefix) {
			return parseErr("push-cert: expected non-empty %q line", label)
		}
		return nil
	}
	if err := requirePrefix("pusher", "pusher "); err != nil {
		return nil, err
	}
	if err := requirePrefix("pushee", "pushee "); err != nil {
		return nil, err
	}
	if err := requirePrefix("nonce", "nonce "); err != nil {
		return nil, err
	}

	// Zero or more push-option lines.
	line, err := next()
	if err != nil {
		return nil, err
	}
	for bytes.HasPrefix([]byte(line), []byte("push-option ")) {
		line, err = next()
		if err != nil {
			return nil, err
		}
	}
	if line != "\n" {
		return nil, parseErr("push-cert: expected blank line before command list")
	}

	var mods []RefModification
	for {
		line, err = next()
		if err != nil {
			return nil, err
		}
		if line == "push-cert-end\n" {
			return mods, nil
		}
		if !hexOID.MatchString(line[:min(40, len(line))]) {
			// Not a command line: the gpg-signature block has begun.
			break
		}
		if !bytes.HasSuffix([]byte(line), []byte("\n")) {
			return nil, parseErr("push-cert: command line missing trailing LF")
		}
		cmd, err := parseCommandStr(line[:len(line)-1])
		if err != nil {
			return nil, err
		}
		mods = append(mods, cmd)
	}

	// Consume the gpg-signature block: any LF-terminated line that is not
	// exactly "push-cert-end".
	for line != "push-cert-end\n" {
		if !bytes.HasSuffix([]byte(line), []byte("\n")) {
			return nil, parseErr("push-cert: gpg-signature line missing trailing LF")
		}
		line, err = next()
		if err != nil {
			return nil, err
		}
	}
	return mods, nil
}
