package http11

import (
	"bytes"
	"strings"
	"testing"
)

func newTestContext(body string) *Context {
	req := &Request{}
	if body != "" {
		req.Body = strings.NewReader(body)
	}
	return &Context{
		Request: req,
		Writer:  NewResponseWriter(&bytes.Buffer{}),
	}
}

func TestContextBodyMaterializesOnce(t *testing.T) {
	ctx := newTestContext(`{"a":1}`)

	b1, err := ctx.Body()
	if err != nil {
		t.Fatalf("Body() error: %v", err)
	}
	if string(b1) != `{"a":1}` {
		t.Fatalf("Body() = %q, want %q", b1, `{"a":1}`)
	}

	// Request.Body is a one-shot reader; a second Body() call must return
	// the cached result rather than re-draining (and finding nothing).
	b2, err := ctx.Body()
	if err != nil {
		t.Fatalf("second Body() error: %v", err)
	}
	if string(b2) != `{"a":1}` {
		t.Fatalf("second Body() = %q, want cached %q", b2, `{"a":1}`)
	}
}

func TestContextBodyNilWhenNoBody(t *testing.T) {
	ctx := newTestContext("")
	b, err := ctx.Body()
	if err != nil {
		t.Fatalf("Body() error: %v", err)
	}
	if b != nil {
		t.Fatalf("Body() = %v, want nil for a bodyless request", b)
	}
}

func TestContextJSONNeverErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want map[string]any
	}{
		{"valid object", `{"name":"gust"}`, map[string]any{"name": "gust"}},
		{"empty body", "", map[string]any{}},
		{"malformed json", `{not json`, map[string]any{}},
		{"json array, not object", `[1,2,3]`, map[string]any{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := newTestContext(tc.body)
			got := ctx.JSON()
			if len(got) != len(tc.want) {
				t.Fatalf("JSON() = %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("JSON()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestContextBindJSONDecodesIntoTarget(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	ctx := newTestContext(`{"name":"gust","age":3}`)
	var p payload
	if err := ctx.BindJSON(&p); err != nil {
		t.Fatalf("BindJSON() error: %v", err)
	}
	if p.Name != "gust" || p.Age != 3 {
		t.Errorf("BindJSON() = %+v, want {gust 3}", p)
	}
}

func TestContextBindJSONReturnsDecodeError(t *testing.T) {
	ctx := newTestContext(`{not json`)
	var v map[string]any
	if err := ctx.BindJSON(&v); err == nil {
		t.Fatal("BindJSON() error = nil, want a decode error for malformed JSON")
	}
}

func TestContextHijackWithoutDriverFails(t *testing.T) {
	ctx := newTestContext("")
	_, _, err := ctx.Hijack()
	if err != ErrConnectionClosed {
		t.Errorf("Hijack() error = %v, want ErrConnectionClosed", err)
	}
}

func TestContextResetClearsBodyCache(t *testing.T) {
	ctx := newTestContext(`{"a":1}`)
	if _, err := ctx.Body(); err != nil {
		t.Fatalf("Body() error: %v", err)
	}
	ctx.reset()
	if ctx.bodyRead {
		t.Error("reset() left bodyRead set")
	}
	if ctx.body != nil {
		t.Error("reset() left a stale body cache")
	}
}
