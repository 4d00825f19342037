package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"tbtr/internal/blob/core"
)

// fakeS3 serves the subset of the S3 REST API the store uses. Listings are paged
// one object per page to exercise continuation tokens.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	failAll bool
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return respond(http.StatusForbidden, nil, nil), nil
	}
	key := ""
	if parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2); len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}
	obj, ok := f.objects[key]
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, h, nil), nil
		}
		return respond(http.StatusOK, h, obj.body), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, http.Header{"Etag": {`"etag"`}}, nil), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if len(keys) > 1 {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%s</NextContinuationToken>", keys[0])
		keys = keys[:1]
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>",
			k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, []byte(b.String()))
}

func respond(status int, h http.Header, body []byte) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body))}
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size, err := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if err != nil || size <= 0 || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	s, err := New(context.Background(), Config{
		Bucket:          "saves",
		Endpoint:        "https://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      fake,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, fake
}

func TestStoreRoundTrip(t *testing.T) {
	s, _ := newFakeStore(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "saves/coal/a.json", strings.NewReader("hello"), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "saves/coal/a.json" || info.ContentType != "application/json" || info.ETag != "etag-saves/coal/a.json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "saves/coal/a.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(ctx, "saves/coal/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" {
		t.Fatalf("unexpected body %q", body)
	}

	for _, k := range []string{"saves/coal/b.json", "saves/coal/c.json", "saves/grain/a.json"} {
		if _, err := s.Put(ctx, k, strings.NewReader("{}"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "saves/coal/")
	if err != nil || len(list) != 3 {
		t.Fatalf("expected 3 coal saves across pages, got %+v (%v)", list, err)
	}
	if list[0].Key != "saves/coal/a.json" || list[2].Key != "saves/coal/c.json" {
		t.Fatalf("expected listing ordered by key, got %+v", list)
	}

	if ok, err := s.Delete(ctx, "saves/coal/a.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "saves/coal/a.json"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, _, err := s.Get(ctx, "saves/coal/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Driver() != core.DriverS3 || s.Bucket() != "saves" {
		t.Fatalf("unexpected driver or bucket")
	}
}

func TestStoreSurfacesServerErrors(t *testing.T) {
	s, fake := newFakeStore(t)
	fake.failAll = true
	ctx := context.Background()
	if _, err := s.Head(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected a non-not-found error, got %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("v"), core.PutOptions{}); err == nil {
		t.Fatalf("expected put to fail when head fails")
	}
	if _, err := s.List(ctx, ""); err == nil {
		t.Fatalf("expected list to fail")
	}
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv("TBTR_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
	t.Setenv("TBTR_BLOB_S3_BUCKET", "env-bucket")
	t.Setenv("TBTR_BLOB_S3_REGION", "eu-west-1")
	t.Setenv("TBTR_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := OpenFromEnv(context.Background())
	if err != nil || s.Bucket() != "env-bucket" {
		t.Fatalf("open from env: %v", err)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}
