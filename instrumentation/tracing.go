package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// Never put credential material (tokens, codes, password digests) in
// trace attributes. Only metadata such as token kinds, provider names,
// and validation results belongs here.
const (
	AttrUserID       = "auth.user_id"
	AttrTokenKind    = "auth.token.kind"
	AttrProviderName = "auth.provider.name"
	AttrEmailKind    = "auth.email.kind"
	AttrErrorCode    = "auth.error.code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds the common authentication flow attributes to a span
func AddFlowAttributes(span trace.Span, userID, tokenKind string) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 2)
	if userID != "" {
		attrs = append(attrs, attribute.String(AttrUserID, userID))
	}
	if tokenKind != "" {
		attrs = append(attrs, attribute.String(AttrTokenKind, tokenKind))
	}
	span.SetAttributes(attrs...)
}

// AddProviderAttributes adds OAuth provider attributes to a span
func AddProviderAttributes(span trace.Span, providerName string) {
	if span == nil || providerName == "" {
		return
	}
	span.SetAttributes(attribute.String(AttrProviderName, providerName))
}
