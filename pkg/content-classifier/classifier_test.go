package contentclassifier

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"/img/logo.png", Image},
		{"/img/photo.JPG", Image},
		{"/favicon.ico", Image},
		{"/assets/fonts/inter.woff2", Font},
		{"/assets/fonts/legacy.eot", Font},
		{"/css/site.css", Style},
		{"/js/app.js", Script},
		{"/js/worker.mjs", Script},
		{"/index.html", Document},
		{"/", Document},
		{"/articles/", Document},
		{"/api/data.json", Other},
		{"/download.zip", Other},
		{"/robots.txt", Other},
		{"", Other},
	}
	for _, test := range tests {
		if got := Classify(test.path); got != test.want {
			t.Errorf("Classify(%q) = %s, want %s", test.path, got, test.want)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	paths := []string{"/a.png", "/b.css", "/c/", "/d.json"}
	for _, path := range paths {
		first := Classify(path)
		for i := 0; i < 100; i++ {
			if got := Classify(path); got != first {
				t.Fatalf("Classify(%q) flapped from %s to %s", path, first, got)
			}
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	table := Table{
		{Ext: "css", Category: Style},
		{Ext: "css", Category: Other},
	}
	if got := table.Classify("/site.css"); got != Style {
		t.Fatalf("got %s, want first rule to win", got)
	}
}
