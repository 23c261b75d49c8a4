package otel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/relaynet/go-relay-network/pkg/request"
)

const (
	maskedAttrValue = "****"

	attrOperationName = attribute.Key("graphql.operation.name")
	attrOperationType = attribute.Key("graphql.operation.type")
	attrOperationID   = attribute.Key("graphql.operation.id")
	attrDocument      = attribute.Key("graphql.document")
	attrVariables     = "graphql.variables."
	attrFormData      = attribute.Key("graphql.form_data")
)

type attributes struct {
	config config
	// definition attributes for span and metrics
	definition []attribute.KeyValue
	// definitionExtra attributes for span only
	definitionExtra []attribute.KeyValue
	// httpRequest attributes for span and metrics
	httpRequest []attribute.KeyValue
	// httpRequestExtra attributes for span only
	httpRequestExtra []attribute.KeyValue
	// httpResponse attributes for span and metrics
	httpResponse []attribute.KeyValue
	// httpResponseExtra attributes for span only
	httpResponseExtra []attribute.KeyValue
}

func newAttributes(cfg config, req *request.Request) *attributes {
	out := &attributes{config: cfg}

	operationType := "query"
	if req.IsMutation() {
		operationType = "mutation"
	}

	out.definition = []attribute.KeyValue{
		attrOperationName.String(req.OperationName()),
		attrOperationType.String(operationType),
		attrFormData.Bool(req.IsFormData()),
	}

	if req.Operation.ID != "" {
		out.definitionExtra = append(out.definitionExtra, attrOperationID.String(req.Operation.ID))
	}
	if cfg.includeDocument && req.Operation.Query != "" {
		out.definitionExtra = append(out.definitionExtra, attrDocument.String(req.Operation.Query))
	}

	var variableAttrs []attribute.KeyValue
	for k, v := range req.Operation.Variables {
		value := maskedAttrValue
		if _, found := cfg.redactedVariables[strings.ToLower(k)]; !found {
			value = cast.ToString(v)
		}
		variableAttrs = append(variableAttrs, attribute.String(attrVariables+k, value))
	}
	out.definitionExtra = append(out.definitionExtra, sortAttrs(variableAttrs)...)

	return out
}

func (v *attributes) SetFromRequest(req *http.Request) {
	if req == nil {
		v.httpRequest = nil
		v.httpRequestExtra = nil
		return
	}

	v.httpRequest = []attribute.KeyValue{
		semconv.HTTPMethodKey.String(req.Method),
		semconv.HTTPURLKey.String(v.redactURL(req.URL)),
		semconv.NetPeerNameKey.String(req.URL.Hostname()),
	}

	var attrs []attribute.KeyValue
	for key, values := range req.Header {
		attrs = append(attrs, attribute.String("http.header."+strings.ToLower(key), v.headerValue(key, values)))
	}
	v.httpRequestExtra = sortAttrs(attrs)
}

func (v *attributes) SetFromResponse(res *http.Response, err error) {
	var netErr net.Error
	errors.As(err, &netErr)
	v.httpResponse = []attribute.KeyValue{
		attribute.Bool("http.is_success", isSuccess(res, err)),
		attribute.Bool("http.is_redirection", isRedirection(res)),
	}
	v.httpResponseExtra = []attribute.KeyValue{
		attribute.Bool("http.error.net", netErr != nil),
		attribute.Bool("http.error.timeout", netErr != nil && netErr.Timeout()),
		attribute.Bool("http.error.cancelled", errors.Is(err, context.Canceled)),
		attribute.Bool("http.error.deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
	}

	if res == nil {
		return
	}

	v.httpResponse = append(v.httpResponse, semconv.HTTPStatusCodeKey.Int(res.StatusCode))

	var attrs []attribute.KeyValue
	for key, values := range res.Header {
		attrs = append(attrs, attribute.String("http.response.header."+strings.ToLower(key), v.headerValue(key, values)))
	}
	v.httpResponseExtra = append(v.httpResponseExtra, sortAttrs(attrs)...)
}

// metricAttrs returns definition and response attributes, the input slices are not modified.
func (v *attributes) metricAttrs() []attribute.KeyValue {
	return append(slices.Clone(v.definition), v.httpResponse...)
}

func (v *attributes) headerValue(key string, values []string) string {
	if _, found := v.config.redactedHeaders[strings.ToLower(key)]; found {
		return maskedAttrValue
	}
	return strings.Join(values, ";")
}

func (v *attributes) redactURL(in *url.URL) string {
	u := *in
	if len(v.config.redactedQueryParams) > 0 && u.RawQuery != "" {
		query := u.Query()
		for k := range query {
			if _, found := v.config.redactedQueryParams[strings.ToLower(k)]; found {
				query.Set(k, maskedAttrValue)
			}
		}
		u.RawQuery = query.Encode()
	}
	return mustURLPathUnescape(u.String())
}

func sortAttrs(attrs []attribute.KeyValue) []attribute.KeyValue {
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].Key < attrs[j].Key
	})
	return attrs
}
