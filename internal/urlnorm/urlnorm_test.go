package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase host", "https://Shop.Example.COM/p/42", "https://shop.example.com/p/42"},
		{"strip www", "https://www.shop.example.com/p/42", "https://shop.example.com/p/42"},
		{"drop query and fragment", "https://shop.example.com/p/42?ref=abc#reviews", "https://shop.example.com/p/42"},
		{"strip trailing slash", "https://shop.example.com/p/42/", "https://shop.example.com/p/42"},
		{"preserve root slash", "https://shop.example.com/", "https://shop.example.com/"},
		{"preserve path case", "https://shop.example.com/P/ABC42", "https://shop.example.com/P/ABC42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://WWW.Shop.Example.com/P/42/?ref=abc#x",
		"http://shop.example.com/",
		"https://shop.example.com/p/42",
	}
	for _, u := range inputs {
		once, err := Normalize(u)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", u, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", once, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent: Normalize(%q)=%q, Normalize(that)=%q", u, once, twice)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	if _, err := Normalize("not a url"); err == nil {
		t.Error("expected error for relative/invalid input")
	}
	if _, err := Normalize(""); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestDomain(t *testing.T) {
	got, err := Domain("https://www.Shop.Example.com/p/42")
	if err != nil {
		t.Fatalf("Domain() error: %v", err)
	}
	if got != "shop.example.com" {
		t.Errorf("Domain() = %q, want %q", got, "shop.example.com")
	}
}

func TestArtifactDigest_Length(t *testing.T) {
	d := ArtifactDigest("https://shop.example.com/p/42")
	if len(d) != 16 {
		t.Errorf("ArtifactDigest length = %d, want 16", len(d))
	}
}

func TestArtifactDigest_Deterministic(t *testing.T) {
	a := ArtifactDigest("https://shop.example.com/p/42")
	b := ArtifactDigest("https://shop.example.com/p/42")
	if a != b {
		t.Errorf("ArtifactDigest not deterministic: %q != %q", a, b)
	}
	c := ArtifactDigest("https://shop.example.com/p/43")
	if a == c {
		t.Error("ArtifactDigest collided for different URLs")
	}
}

func TestArtifactPath(t *testing.T) {
	p, err := ArtifactPath("https://www.shop.example.com/p/42", "html")
	if err != nil {
		t.Fatalf("ArtifactPath() error: %v", err)
	}
	want := "shop.example.com/" + ArtifactDigest("https://www.shop.example.com/p/42") + "/latest.html"
	if p != want {
		t.Errorf("ArtifactPath() = %q, want %q", p, want)
	}
}
