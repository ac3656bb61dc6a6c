package namekit

import "testing"

func TestIsJunk_KnownJunk(t *testing.T) {
	junk := []string{
		"On Tuesday the",
		"12345",
		"a@b.com",
		"AB",
		"",
		"   ",
		"The Honorable Court finds that the",
		"https://example.com/doc",
		"C:\\scans\\batch7",
		"exhibit_14.pdf",
		"XYZ",
		"Mr Smth Brnch",
		"####--2023--####",
		"First Name\nLast Name",
	}

	for _, name := range junk {
		if !IsJunk(name) {
			t.Fatalf("expected IsJunk(%q) to be true", name)
		}
	}
}

func TestIsJunk_RealNames(t *testing.T) {
	real := []string{
		"Jeffrey Epstein",
		"Ghislaine Maxwell",
		"Deutsche Bank AG",
		"Little St. James Island",
		"Jean-Luc Brunel",
		"O'Donnell",
	}

	for _, name := range real {
		if IsJunk(name) {
			t.Fatalf("expected IsJunk(%q) to be false", name)
		}
	}
}

func TestIsJunk_TokenCap(t *testing.T) {
	if !IsJunk("Alpha Beta Gamma Delta Epsilon Zeta") {
		t.Fatal("expected six tokens to be junk")
	}
	if IsJunk("Alpha Beta Gamma Delta Epsilon") {
		t.Fatal("expected five tokens to pass")
	}
}

func TestIsJunk_MultilineWhitelist(t *testing.T) {
	if IsJunk("United States District Court\nSouthern District of New York") {
		t.Fatal("expected whitelisted multi-line variant to pass")
	}
	if !IsJunk("Dear Sir\nPlease find attached") {
		t.Fatal("expected non-whitelisted line break to be junk")
	}
}

func TestIsJunk_Idempotent(t *testing.T) {
	names := []string{"Jeffrey Epstein", "12345", "On Tuesday the"}
	for _, name := range names {
		first := IsJunk(name)
		for i := 0; i < 3; i++ {
			if IsJunk(name) != first {
				t.Fatalf("IsJunk(%q) drifted across calls", name)
			}
		}
	}
}
