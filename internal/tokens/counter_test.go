package tokens

import (
	"strings"
	"testing"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
)

func TestNewCounterKnownFamilies(t *testing.T) {
	for _, model := range []string{"solar-pro", "gpt-4o-mini", "claude-sonnet", "qwen2.5", "llama-3.1-8b", "mistral-small"} {
		if _, err := NewCounter(model); err != nil {
			t.Errorf("NewCounter(%q) failed: %v", model, err)
		}
	}
}

func TestNewCounterUnknownModel(t *testing.T) {
	_, err := NewCounter("totally-made-up-model")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if !config.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestCountDeterministic(t *testing.T) {
	c, err := NewCounter("solar-pro")
	if err != nil {
		t.Fatal(err)
	}
	text := "Where can I find good bibimbap near Hongdae?"
	a := c.Count(text)
	b := c.Count(text)
	if a != b {
		t.Errorf("Count not deterministic: %d vs %d", a, b)
	}
	if a <= 0 {
		t.Errorf("Count = %d, want positive", a)
	}
}

func TestCountScalesWithLength(t *testing.T) {
	c, err := NewCounter("solar-pro")
	if err != nil {
		t.Fatal(err)
	}
	short := c.Count("hello")
	long := c.Count(strings.Repeat("hello world ", 100))
	if long <= short {
		t.Errorf("longer text should cost more tokens: short=%d long=%d", short, long)
	}
}

func TestCountCJKDenser(t *testing.T) {
	c, err := NewCounter("solar-pro")
	if err != nil {
		t.Fatal(err)
	}
	// Same rune count; CJK should estimate higher.
	latin := c.Count(strings.Repeat("a", 40))
	korean := c.Count(strings.Repeat("서", 40))
	if korean <= latin {
		t.Errorf("CJK text should cost more per rune: latin=%d korean=%d", latin, korean)
	}
}

func TestCountMessageOverhead(t *testing.T) {
	c, err := NewCounter("solar-pro")
	if err != nil {
		t.Fatal(err)
	}
	content := "thanks, that looks great"
	if got, want := c.CountMessage(content), c.Count(content)+messageOverhead; got != want {
		t.Errorf("CountMessage = %d, want %d", got, want)
	}
}

func TestCheckBudget(t *testing.T) {
	tests := []struct {
		name      string
		used      int
		wantSumm  bool
		wantOver  bool
		remaining int
	}{
		{"under soft", 1000, false, false, 7000},
		{"at soft", 6000, false, false, 2000},
		{"over soft", 6001, true, false, 1999},
		{"over hard", 9000, true, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := CheckBudget(tt.used, 6000, 8000)
			if b.NeedsSummarization != tt.wantSumm {
				t.Errorf("NeedsSummarization = %v, want %v", b.NeedsSummarization, tt.wantSumm)
			}
			if b.OverHardLimit != tt.wantOver {
				t.Errorf("OverHardLimit = %v, want %v", b.OverHardLimit, tt.wantOver)
			}
			if b.Remaining() != tt.remaining {
				t.Errorf("Remaining = %d, want %d", b.Remaining(), tt.remaining)
			}
		})
	}
}
