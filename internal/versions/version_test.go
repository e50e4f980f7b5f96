package versions

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoFrom(t *testing.T) {
	t.Parallel()

	vcs := func() map[string]string {
		return map[string]string{
			"vcs.revision": "0123456789abcdef",
			"vcs.time":     "2025-03-01T10:30:00Z",
		}
	}

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
		want      Info
	}{
		{
			name:      "release build keeps ldflags values",
			version:   "v1.2.0",
			commit:    "feedbeef",
			buildDate: "2025-01-15T10:30:00Z",
			want: Info{
				Version:   "v1.2.0",
				Commit:    "feedbeef",
				BuildDate: "2025-01-15 10:30:00 UTC",
			},
		},
		{
			name:      "dev build reads vcs settings",
			version:   "dev",
			commit:    unknownStr,
			buildDate: unknownStr,
			want: Info{
				Version:   "build-01234567",
				Commit:    "0123456789abcdef",
				BuildDate: "2025-03-01 10:30:00 UTC",
			},
		},
		{
			name:      "dev build prefers explicit commit",
			version:   "dev",
			commit:    "abc",
			buildDate: unknownStr,
			want: Info{
				Version:   "build-abc",
				Commit:    "abc",
				BuildDate: "2025-03-01 10:30:00 UTC",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := infoFrom(tt.version, tt.commit, tt.buildDate, vcs)
			tt.want.GoVersion = runtime.Version()
			tt.want.Platform = runtime.GOOS + "/" + runtime.GOARCH
			assert.Equal(t, tt.want, got)
		})
	}
}
