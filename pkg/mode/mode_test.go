package mode

import (
	"errors"
	"testing"
)

func TestIsLegalExhaustive(t *testing.T) {
	for _, cur := range All {
		allowed := map[Mode]bool{}
		for _, next := range Transitions[cur] {
			allowed[next] = true
		}
		for _, req := range All {
			want := req == cur || allowed[req]
			if got := IsLegal(cur, req); got != want {
				t.Errorf("IsLegal(%s, %s) = %v, want %v", cur, req, got, want)
			}
		}
	}
}

func TestEveryModeHasEntry(t *testing.T) {
	for _, m := range All {
		if _, ok := Transitions[m]; !ok {
			t.Errorf("no transition entry for %s", m)
		}
	}
}

func TestErrorRecoversOnlyToStandby(t *testing.T) {
	if !IsLegal(Error, Standby) {
		t.Fatal("Error -> Standby must be legal")
	}
	for _, m := range []Mode{Off, Boot, Film, Transmit, Purge} {
		if IsLegal(Error, m) {
			t.Errorf("Error -> %s should be rejected", m)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      int
		want    Mode
		wantErr bool
	}{
		{0, Off, false},
		{2, Standby, false},
		{5, Purge, false},
		{0xFF, Error, false},
		{6, 0, true},
		{-1, 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("Parse(%d): expected ErrUnknownMode, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Parse(%d) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestParseName(t *testing.T) {
	for _, m := range All {
		got, err := ParseName(m.String())
		if err != nil || got != m {
			t.Errorf("ParseName(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseName("FILMING"); err == nil {
		t.Error("expected error for unknown name")
	}
}
