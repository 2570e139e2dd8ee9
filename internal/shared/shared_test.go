package shared

import "testing"

func TestNormalizeText(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases and trims",
			in:   "  Beautiful Girls  ",
			want: "beautiful girls",
		},
		{
			name: "strips punctuation keeps hyphens",
			in:   "Don't Stop (Remastered) - Live!",
			want: "dont stop remastered - live",
		},
		{
			name: "collapses whitespace",
			in:   "Sean   Kingston\tTopic",
			want: "sean kingston topic",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "keeps cjk letters",
			in:   "夜に駆ける (Official)",
			want: "夜に駆ける official",
		},
		{
			name: "keeps cyrillic and accents",
			in:   "Моя Любовь / Beyoncé!",
			want: "моя любовь beyoncé",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeText(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "basic normalization",
			title:  "Song Title",
			artist: "Artist Name",
			want:   "artist name:song title",
		},
		{
			name:   "extra whitespace",
			title:  "  Song   Title  ",
			artist: "  Artist   Name  ",
			want:   "artist name:song title",
		},
		{
			name:   "mixed case and punctuation",
			title:  "SoNg, TiTlE!",
			artist: "ArTiSt NaMe",
			want:   "artist name:song title",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}
