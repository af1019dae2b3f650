package grouping

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// Signature is the crash-site identity derived from a raw or symbolicated
// log: where it crashed, which exception class fired, and why.
type Signature struct {
	Location  string
	Exception string
	Reason    string
}

// Fingerprint returns a stable hash of the normalized signature fields.
// Two logs that normalize to the same (location, exception, reason) always
// produce the same fingerprint, raw or symbolicated.
func (s Signature) Fingerprint() string {
	joined := normalizeField(s.Location) + "\x00" +
		normalizeField(s.Exception) + "\x00" +
		normalizeField(s.Reason)
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", hash)
}

// Extractor derives a Signature from crash log text. Implementations must
// be deterministic: the same log text always yields the same signature.
type Extractor interface {
	Extract(log string) (Signature, error)
}

// Normalization regexes compiled once at package init.
var (
	reHexAddr      = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reWhitespace   = regexp.MustCompile(`\s+`)
	reFrameLoc     = regexp.MustCompile(`\(([^)]+:\d+)\)\s*$`)
	reCrashedThead = regexp.MustCompile(`^Thread \d+ Crashed`)
)

const unknownField = "unknown"

// HeaderExtractor parses the stable string fields found in a crash log's
// header section: the exception type line, the exception reason line, and
// the top frame of the crashed thread.
type HeaderExtractor struct{}

func NewHeaderExtractor() *HeaderExtractor {
	return &HeaderExtractor{}
}

// Extract never fails on malformed input; missing fields degrade to
// "unknown" so that structurally broken logs still group together.
func (e *HeaderExtractor) Extract(log string) (Signature, error) {
	sig := Signature{
		Location:  unknownField,
		Exception: unknownField,
		Reason:    unknownField,
	}

	scanner := bufio.NewScanner(strings.NewReader(log))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inCrashedThread := false
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "Exception Type:"):
			if v := headerValue(line, "Exception Type:"); v != "" {
				sig.Exception = v
			}
		case strings.HasPrefix(line, "Exception Message:"):
			if v := headerValue(line, "Exception Message:"); v != "" {
				sig.Reason = v
			}
		case strings.HasPrefix(line, "Exception Codes:"):
			// Exception Message wins when both are present.
			if sig.Reason == unknownField {
				if v := headerValue(line, "Exception Codes:"); v != "" {
					sig.Reason = v
				}
			}
		case reCrashedThead.MatchString(line):
			inCrashedThread = true
		case inCrashedThread:
			if loc, ok := frameLocation(line); ok {
				sig.Location = loc
				inCrashedThread = false
			} else if strings.TrimSpace(line) == "" {
				inCrashedThread = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Signature{}, fmt.Errorf("scan crash log: %w", err)
	}

	return sig, nil
}

func headerValue(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// frameLocation pulls a source location out of a stack frame line. A
// symbolicated frame ends in "(file.c:line)"; an unsymbolicated one only
// has addresses, in which case the frame's image and symbol columns are
// used as a fallback.
func frameLocation(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	if m := reFrameLoc.FindStringSubmatch(trimmed); m != nil {
		return m[1], true
	}
	fields := strings.Fields(trimmed)
	// frame layout: index, image name, address, symbol...
	if len(fields) >= 4 {
		return fields[1] + " " + strings.Join(fields[3:], " "), true
	}
	if len(fields) >= 2 {
		return strings.Join(fields[1:], " "), true
	}
	return "", false
}

func normalizeField(s string) string {
	s = reHexAddr.ReplaceAllString(s, "0xADDR")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	return strings.TrimSpace(s)
}
