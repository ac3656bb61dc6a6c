package namekit

import "testing"

func TestCasefold(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Jeffrey   Epstein ", "jeffrey epstein"},
		{"O'Brien, J.P.", "obrien jp"},
		{"GHISLAINE MAXWELL", "ghislaine maxwell"},
		{"J0hn Smith", "jhn smith"},
		{"", ""},
		{"   ", ""},
	}

	for _, c := range cases {
		if got := Casefold(c.in); got != c.want {
			t.Fatalf("Casefold(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPhoneticKey_SharedBuckets(t *testing.T) {
	pairs := [][2]string{
		{"Ghislaine Maxwell", "Ghislaine Maxwel"},
		{"Epstein", "Epstien"},
		{"Robert", "Rupert"},
	}
	for _, p := range pairs {
		a, b := PhoneticKey(p[0]), PhoneticKey(p[1])
		if a == "" || a != b {
			t.Fatalf("expected %q and %q to share a bucket, got %q vs %q", p[0], p[1], a, b)
		}
	}
}

func TestPhoneticKey_Properties(t *testing.T) {
	if got := PhoneticKey(""); got != "" {
		t.Fatalf("expected empty key for empty input, got %q", got)
	}
	if got := PhoneticKey("Bartholomew Vanderbilt-Rothschild"); len(got) > 8 {
		t.Fatalf("expected key capped at 8 symbols, got %q (%d)", got, len(got))
	}
	// Same name through casefolding noise lands in the same bucket.
	if PhoneticKey("  jeffrey  EPSTEIN ") != PhoneticKey("Jeffrey Epstein") {
		t.Fatal("expected casefolding noise not to change the bucket")
	}
}

func TestPhoneticKey_DistinctNamesSplit(t *testing.T) {
	if PhoneticKey("Maxwell") == PhoneticKey("Dershowitz") {
		t.Fatal("expected clearly different names to bucket apart")
	}
}

func TestOCRCorrect(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		changed bool
	}{
		{"J0hn Smith", "John Smith", true},
		{"Wi11iam", "William", true},
		{"Smith", "Smith", false},
		{"Epstein", "Epstein", false},
		{"Barnes", "Bames", true},
		{"5arah", "sarah", true},
	}

	for _, c := range cases {
		got, changed := OCRCorrect(c.in)
		if changed != c.changed || got != c.want {
			t.Fatalf("OCRCorrect(%q) = (%q, %v), want (%q, %v)", c.in, got, changed, c.want, c.changed)
		}
	}
}

func TestOCRCorrect_RejectsNonAlphabeticResult(t *testing.T) {
	// All-digit input would "correct" into a different all-symbol string or
	// stay numeric; either way it must not be offered as a name.
	got, changed := OCRCorrect("777")
	if changed {
		t.Fatalf("expected no correction for %q, got %q", "777", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"ghislaine max", "ghislaine maxwell", 4},
		{"same", "same", 0},
	}

	for _, c := range cases {
		if got := Levenshtein(c.a, c.b); got != c.want {
			t.Fatalf("Levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	got := Similarity("ghislaine max", "ghislaine maxwell")
	want := 1 - 4.0/17.0
	if got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("Similarity = %f, want %f", got, want)
	}
	if Similarity("", "") != 1 {
		t.Fatal("expected identical empties to score 1")
	}
}
