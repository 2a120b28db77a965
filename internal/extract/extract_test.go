package extract

import (
	"reflect"
	"testing"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()

	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return e
}

func TestExtract_ArchiveFinalTable(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)

	path := "//nas/share/GGPNAs/ARCHIVE/WSOP/WSOP ARCHIVE/2024/Main Event Day 1 Final Table.mp4"
	meta := e.Extract(path, "Main Event Day 1 Final Table.mp4")

	if meta.Brand != "WSOP" {
		t.Errorf("Brand = %q, want WSOP", meta.Brand)
	}

	if meta.Year != 2024 {
		t.Errorf("Year = %d, want 2024", meta.Year)
	}

	if meta.EventType != "Final Table" {
		t.Errorf("EventType = %q, want Final Table", meta.EventType)
	}

	if meta.Day != "Day 1" {
		t.Errorf("Day = %q, want Day 1", meta.Day)
	}

	if meta.Series != "Archive" {
		t.Errorf("Series = %q, want Archive", meta.Series)
	}

	if meta.DisplayTitle != "WSOP 2024 Final Table Day 1" {
		t.Errorf("DisplayTitle = %q, want %q", meta.DisplayTitle, "WSOP 2024 Final Table Day 1")
	}

	for _, want := range []string{"WSOP", "2024", "Final Table"} {
		if !containsTag(meta.Tags, want) {
			t.Errorf("Tags %v missing %q", meta.Tags, want)
		}
	}
}

func TestExtract_HandClipPlayers(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)

	meta := e.Extract("//nas/ARCHIVE/HCL/2023", "Hand_142_Phil_Ivey_AhKh_vs_Tom_Dwan.mp4")

	if want := []string{"Phil", "Tom"}; !reflect.DeepEqual(meta.Players, want) {
		t.Errorf("Players = %v, want %v", meta.Players, want)
	}

	if meta.DisplayTitle != "Hand #142: Phil vs Tom" {
		t.Errorf("DisplayTitle = %q, want %q", meta.DisplayTitle, "Hand #142: Phil vs Tom")
	}

	if meta.ContentType != "Hand Clip" {
		t.Errorf("ContentType = %q, want Hand Clip", meta.ContentType)
	}

	for _, want := range []string{"Phil", "Tom"} {
		if !containsTag(meta.Tags, want) {
			t.Errorf("Tags %v missing player %q", meta.Tags, want)
		}
	}
}

func TestExtract_Fields(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)

	tests := []struct {
		name     string
		path     string
		filename string
		check    func(t *testing.T, m Metadata)
	}{
		{
			name:     "las vegas with underscores is not los angeles",
			path:     "//nas/ARCHIVE/WSOP/2023",
			filename: "WSOP_LAS_VEGAS_Main_Event.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.Location != "Las Vegas" {
					t.Errorf("Location = %q, want Las Vegas", m.Location)
				}
			},
		},
		{
			name:     "bare LA resolves to los angeles",
			path:     "//nas/ARCHIVE/HCL/2023",
			filename: "HCL LA High Roller.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.Location != "Los Angeles" {
					t.Errorf("Location = %q, want Los Angeles", m.Location)
				}
			},
		},
		{
			name:     "buy-in comma form",
			path:     "//nas/ARCHIVE/MPP/2024",
			filename: "$25,000 High Roller Day 2.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.BuyIn != "$25,000" {
					t.Errorf("BuyIn = %q, want $25,000", m.BuyIn)
				}
			},
		},
		{
			name:     "buy-in K shorthand",
			path:     "//nas/ARCHIVE/GGMillions/2024",
			filename: "GGMillions $100K SHR FT.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.BuyIn != "$100K" {
					t.Errorf("BuyIn = %q, want $100K", m.BuyIn)
				}

				if m.EventType != "Super High Roller" {
					t.Errorf("EventType = %q, want Super High Roller", m.EventType)
				}
			},
		},
		{
			name:     "season episode marker",
			path:     "//nas/ARCHIVE/GOG/2023",
			filename: "Game_of_Gold_S12-EP14.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.Episode != "S12 E14" {
					t.Errorf("Episode = %q, want S12 E14", m.Episode)
				}

				if m.Brand != "GOG" {
					t.Errorf("Brand = %q, want GOG", m.Brand)
				}
			},
		},
		{
			name:     "plain episode marker",
			path:     "//nas/ARCHIVE/PAD/2022",
			filename: "Poker_After_Dark_Episode_7.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.Episode != "Episode 7" {
					t.Errorf("Episode = %q, want Episode 7", m.Episode)
				}
			},
		},
		{
			name:     "highest year wins",
			path:     "//nas/ARCHIVE/WSOP/restored 2003 footage/2021/Main Event",
			filename: "main event.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.Year != 2021 {
					t.Errorf("Year = %d, want 2021", m.Year)
				}

				if m.Series != "Archive" {
					t.Errorf("Series = %q, want Archive", m.Series)
				}
			},
		},
		{
			name:     "day letter suffix",
			path:     "//nas/ARCHIVE/WSOP/2024",
			filename: "Main Event Day 1C.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.Day != "Day 1C" {
					t.Errorf("Day = %q, want Day 1C", m.Day)
				}
			},
		},
		{
			name:     "variant content type parenthesized in title",
			path:     "//nas/ARCHIVE/WSOP/2024",
			filename: "Main Event Day 3 CLEAN.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.ContentType != "Clean Version" {
					t.Errorf("ContentType = %q, want Clean Version", m.ContentType)
				}

				if want := "WSOP 2024 Main Event Day 3 (Clean Version)"; m.DisplayTitle != want {
					t.Errorf("DisplayTitle = %q, want %q", m.DisplayTitle, want)
				}
			},
		},
		{
			name:     "fallback cleans filename",
			path:     "//nas/other",
			filename: "1218_untitled-session_recording.mp4",
			check: func(t *testing.T, m Metadata) {
				if m.DisplayTitle != "untitled session recording" {
					t.Errorf("DisplayTitle = %q, want %q", m.DisplayTitle, "untitled session recording")
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.check(t, e.Extract(tt.path, tt.filename))
		})
	}
}

// Memoized results must equal fresh computation, and repeated calls must
// be byte-for-byte stable.
func TestExtract_MemoizationStable(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)

	path := "//nas/ARCHIVE/WSOP/2024/Main Event"
	filename := "WSOP 2024 Main Event Day 5 $10,000.mp4"

	first := e.Extract(path, filename)
	cached := e.Extract(path, filename)
	fresh := extract(path, filename)

	if !reflect.DeepEqual(first, cached) {
		t.Errorf("cached result differs: %+v vs %+v", first, cached)
	}

	if !reflect.DeepEqual(first, fresh) {
		t.Errorf("memoized result differs from fresh computation: %+v vs %+v", first, fresh)
	}
}

func TestBuildTags_Deduplicates(t *testing.T) {
	t.Parallel()

	meta := Metadata{Brand: "WSOP", Year: 2024, Players: []string{"WSOP", "Phil"}}
	tags := buildTags(meta)

	if want := []string{"WSOP", "2024", "Phil"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("buildTags = %v, want %v", tags, want)
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}

	return false
}
