package observability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// attrAction is what the filter does with one span attribute.
type attrAction int

const (
	attrDrop attrAction = iota
	attrKeep
	attrRedact
)

// attrRule matches a key exactly, or by prefix when the pattern ends in ".".
type attrRule struct {
	pattern string
	action  attrAction
}

func (r attrRule) matches(key string) bool {
	if strings.HasSuffix(r.pattern, ".") {
		return strings.HasPrefix(key, r.pattern)
	}

	return key == r.pattern
}

// attrRules are evaluated in order; the first match wins and unmatched keys
// are dropped. Author identities never leave the process. Repository paths
// are local filesystem paths and are exported only as a digest.
var attrRules = []attrRule{
	{"author", attrDrop},
	{"author.", attrDrop},
	{"coauthor.", attrDrop},
	{"email", attrDrop},
	{"user.", attrDrop},
	{"request.body", attrDrop},
	{"response.body", attrDrop},
	{"analysis.repository", attrRedact},
	{"error", attrKeep},
	{"codetree.", attrKeep},
	{"analysis.", attrKeep},
	{"cache.", attrKeep},
	{"git.", attrKeep},
	{"error.", attrKeep},
	{"http.", attrKeep},
}

// redactedLen is the number of hex digits kept from a redacted value.
const redactedLen = 12

// attributeFilter rewrites span attributes before they reach the exporter.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger
}

// NewAttributeFilter wraps delegate so exported spans carry only known
// codetree attributes. Author names and emails are stripped, repository
// paths are replaced by a digest. When logger is non-nil every stripped key
// is logged at Warn, which flags new attributes during development.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd hands the delegate a filtered view; ReadOnlySpan cannot be mutated.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, filter: f})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) action(key string) attrAction {
	for _, rule := range attrRules {
		if rule.matches(key) {
			return rule.action
		}
	}

	return attrDrop
}

// apply returns kv as it may be exported and whether it survives.
func (f *attributeFilter) apply(kv attribute.KeyValue) (attribute.KeyValue, bool) {
	switch f.action(string(kv.Key)) {
	case attrKeep:
		return kv, true
	case attrRedact:
		return kv.Key.String(redact(kv.Value.Emit())), true
	default:
		if f.logger != nil {
			f.logger.Warn("attribute blocked by filter", "key", string(kv.Key))
		}

		return attribute.KeyValue{}, false
	}
}

func redact(value string) string {
	sum := sha256.Sum256([]byte(value))

	return "sha256:" + hex.EncodeToString(sum[:])[:redactedLen]
}

type filteredSpan struct {
	sdktrace.ReadOnlySpan

	filter *attributeFilter
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	orig := s.ReadOnlySpan.Attributes()
	out := make([]attribute.KeyValue, 0, len(orig))

	for _, kv := range orig {
		if kept, ok := s.filter.apply(kv); ok {
			out = append(out, kept)
		}
	}

	return out
}
