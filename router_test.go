package offlinecache

import (
	"net/http"
	"testing"

	classifier "github.com/prototypingcove/offline-cache/pkg/content-classifier"
	"github.com/prototypingcove/offline-cache/tier"
)

func TestStoreTierRouting(t *testing.T) {
	p := newTestProxy(t, Config{
		Precache: []string{"/", "/css/site.css", "/js/app.js"},
	})
	tests := []struct {
		path     string
		category classifier.Category
		tier     string
	}{
		{"/css/site.css", classifier.Style, "static-v1"},
		{"/js/app.js", classifier.Script, "static-v1"},
		{"/css/extra.css", classifier.Style, "dynamic-v1"},
		{"/img/photo.png", classifier.Image, "dynamic-v1"},
		// documents stay out of the installed tier even when precached
		{"/", classifier.Document, "dynamic-v1"},
	}
	for _, test := range tests {
		got := p.storeTier(p.keyer.ForPath(test.path), test.category)
		if got != test.tier {
			t.Fatalf("storeTier(%s, %s) is %s, want %s", test.path, test.category, got, test.tier)
		}
	}
}

func TestShouldStoreGates(t *testing.T) {
	p := newTestProxy(t, Config{})
	ok := &http.Response{StatusCode: http.StatusOK}
	notFound := &http.Response{StatusCode: http.StatusNotFound}
	get, _ := http.NewRequest("GET", "/img/photo.png", nil)
	post, _ := http.NewRequest("POST", "/img/photo.png", nil)
	foreign, _ := http.NewRequest("GET", "https://evil.example/img/photo.png", nil)

	if !p.shouldStore(get, ok, classifier.Image) {
		t.Fatal("cacheable image response not stored")
	}
	if p.shouldStore(post, ok, classifier.Image) {
		t.Fatal("POST response stored")
	}
	if p.shouldStore(get, notFound, classifier.Image) {
		t.Fatal("error response stored")
	}
	if p.shouldStore(get, ok, classifier.Other) {
		t.Fatal("unclassified response stored")
	}
	if p.shouldStore(foreign, ok, classifier.Image) {
		t.Fatal("foreign origin response stored")
	}
}

func TestCategorizeDocumentRoutes(t *testing.T) {
	p := newTestProxy(t, Config{DocumentRoutes: []string{"/pricing"}})
	if got := p.categorize("/pricing"); got != classifier.Document {
		t.Fatalf("categorize(/pricing) is %s", got)
	}
	if got := p.categorize("/unknown"); got != classifier.Other {
		t.Fatalf("categorize(/unknown) is %s", got)
	}
	if got := p.categorize("/site.css"); got != classifier.Style {
		t.Fatalf("categorize(/site.css) is %s", got)
	}
}

func TestLookupPrefersStatic(t *testing.T) {
	store := tier.NewMemStore()
	p := newTestProxy(t, Config{Store: store})
	seedResponse(t, store, "dynamic-v1", "GET:/app.js", "text/javascript", "dynamic copy")

	bts, tierName, ok := p.lookup("GET:/app.js")
	if !ok {
		t.Fatal("entry not found")
	}
	if tierName != "dynamic-v1" {
		t.Fatalf("found in tier %s", tierName)
	}
	if len(bts) == 0 {
		t.Fatal("entry is empty")
	}

	seedResponse(t, store, "static-v1", "GET:/app.js", "text/javascript", "static copy")
	_, tierName, ok = p.lookup("GET:/app.js")
	if !ok {
		t.Fatal("entry not found")
	}
	if tierName != "static-v1" {
		t.Fatalf("found in tier %s, want the static tier checked first", tierName)
	}
}
