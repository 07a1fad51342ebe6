package http2

import (
	"strconv"

	"github.com/valyala/fasthttp"
)

// RequestToFasthttp populates req from a RequestReceived event's decoded
// header list, the same pseudo-header-to-fasthttp mapping the teacher's
// adaptor.go performs by hand per header field.
func RequestToFasthttp(headers []Header, req *fasthttp.Request) {
	for _, h := range headers {
		if len(h.Name) == 0 {
			continue
		}
		if h.Name[0] != ':' {
			req.Header.Add(h.Name, h.Value)
			continue
		}
		switch h.Name {
		case ":method":
			req.Header.SetMethod(h.Value)
		case ":path":
			req.SetRequestURI(h.Value)
		case ":scheme":
			req.URI().SetScheme(h.Value)
		case ":authority":
			req.URI().SetHost(h.Value)
			req.Header.Set("Host", h.Value)
		}
	}
}

// FasthttpToRequestHeaders converts req back into the pseudo-header-first
// []Header list SendHeaders expects (RFC 7540 §8.1.2.3 ordering: all
// pseudo-headers before any regular field).
func FasthttpToRequestHeaders(req *fasthttp.Request) []Header {
	headers := []Header{
		{Name: ":method", Value: string(req.Header.Method())},
		{Name: ":scheme", Value: string(req.URI().Scheme())},
		{Name: ":path", Value: string(req.URI().RequestURI())},
	}
	if authority := req.URI().Host(); len(authority) > 0 {
		headers = append(headers, Header{Name: ":authority", Value: string(authority)})
	}
	req.Header.VisitAll(func(k, v []byte) {
		name := http2LowerHeaderName(k)
		if name == "host" {
			return
		}
		headers = append(headers, Header{Name: name, Value: string(v)})
	})
	return headers
}

// ResponseToFasthttp populates res from a ResponseReceived event's header
// list.
func ResponseToFasthttp(headers []Header, res *fasthttp.Response) {
	for _, h := range headers {
		switch h.Name {
		case ":status":
			if code, err := strconv.Atoi(h.Value); err == nil {
				res.SetStatusCode(code)
			}
		default:
			if len(h.Name) > 0 && h.Name[0] != ':' {
				res.Header.Add(h.Name, h.Value)
			}
		}
	}
}

// FasthttpToResponseHeaders converts res into the []Header list SendHeaders
// expects, adding the :status pseudo-header and a content-length the
// teacher's fasthttpResponseHeaders computes the same way.
func FasthttpToResponseHeaders(res *fasthttp.Response) []Header {
	headers := []Header{
		{Name: ":status", Value: strconv.Itoa(res.StatusCode())},
		{Name: "content-length", Value: strconv.Itoa(len(res.Body()))},
	}
	res.Header.VisitAll(func(k, v []byte) {
		name := http2LowerHeaderName(k)
		if name == "content-length" {
			return
		}
		headers = append(headers, Header{Name: name, Value: string(v)})
	})
	return headers
}

func http2LowerHeaderName(k []byte) string {
	b := make([]byte, len(k))
	for i, c := range k {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
