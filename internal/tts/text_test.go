package tts

import "testing"

func TestPrepareSwedishText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds period", "Hej där", "Hej där."},
		{"keeps period", "Hej där.", "Hej där."},
		{"keeps question", "Hur mår du?", "Hur mår du?"},
		{"keeps exclamation", "Tack!", "Tack!"},
		{"kronor", "Det kostar 50 kr totalt", "Det kostar 50 kronor totalt."},
		{"kronor at end", "Det kostar 50 kr.", "Det kostar 50 kronor."},
		{"stycken", "Jag vill ha 3 st äpplen", "Jag vill ha 3 stycken äpplen."},
		{"och så vidare", "Mjölk, bröd osv.", "Mjölk, bröd och så vidare."},
		{"till exempel", "Frukt, t.ex. äpplen", "Frukt, till exempel. äpplen."},
		{"cirka", "Det tar ca 5 minuter", "Det tar cirka 5 minuter."},
		{"inside word untouched", "Kraften är stark", "Kraften är stark."},
		{"leading abbreviation untouched", "kr är valutan", "kr är valutan."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrepareSwedishText(tt.in); got != tt.want {
				t.Errorf("PrepareSwedishText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"piper", "espeak", "system"} {
		if p, err := ParseProvider(name); err != nil || string(p) != name {
			t.Errorf("ParseProvider(%q) = %v, %v", name, p, err)
		}
	}
	if _, err := ParseProvider("festival"); err == nil {
		t.Error("ParseProvider(festival) should fail")
	}
}

func TestCountWords(t *testing.T) {
	if got := countWords("  Hej   på dig.  "); got != 3 {
		t.Errorf("countWords() = %d, want 3", got)
	}
}
