package watcher

import "testing"

func TestFilterDefaults(t *testing.T) {
	cfg := FilterConfig{}.WithDefaults()
	if cfg.MaxDepth != 20 {
		t.Errorf("MaxDepth = %d, want 20", cfg.MaxDepth)
	}
	if cfg.MaxFilesPerDir != 10000 {
		t.Errorf("MaxFilesPerDir = %d, want 10000", cfg.MaxFilesPerDir)
	}
	if cfg.MaxFileSize != 500*1024*1024 {
		t.Errorf("MaxFileSize = %d, want 500MB", cfg.MaxFileSize)
	}
	if cfg.FollowSymlinks {
		t.Error("FollowSymlinks should default to false")
	}
}

func TestFilterBlacklistDefaults(t *testing.T) {
	f := NewFilter(FilterConfig{})
	cases := []string{"node_modules/lodash", ".git/HEAD", "target/debug/app", "__pycache__/mod.pyc"}
	for _, relPath := range cases {
		if reason := f.DecideDir(relPath, 1, false); reason == SkipNone {
			t.Errorf("DecideDir(%q) = SkipNone, want a skip reason", relPath)
		}
	}
}

func TestFilterWhitelistOverridesBlacklist(t *testing.T) {
	f := NewFilter(FilterConfig{
		Blacklist: []string{"build/"},
		Whitelist: []string{"build/keep-me/"},
	})
	if reason := f.DecideDir("build/keep-me", 1, false); reason != SkipNone {
		t.Errorf("whitelisted dir was skipped: %v", reason)
	}
	if reason := f.DecideDir("build/other", 1, false); reason == SkipNone {
		t.Error("non-whitelisted blacklisted dir should be skipped")
	}
}

func TestFilterMaxDepth(t *testing.T) {
	f := NewFilter(FilterConfig{MaxDepth: 2})
	if reason := f.DecideDir("a/b", 2, false); reason != SkipNone {
		t.Errorf("depth within bound should not be skipped, got %v", reason)
	}
	if reason := f.DecideDir("a/b/c", 3, false); reason != SkipMaxDepth {
		t.Errorf("reason = %v, want SkipMaxDepth", reason)
	}
}

func TestFilterSymlinkPolicy(t *testing.T) {
	f := NewFilter(FilterConfig{})
	if reason := f.DecideDir("linked", 1, true); reason != SkipSymlinkPolicy {
		t.Errorf("reason = %v, want SkipSymlinkPolicy", reason)
	}

	followed := NewFilter(FilterConfig{FollowSymlinks: true})
	if reason := followed.DecideDir("linked", 1, true); reason != SkipNone {
		t.Errorf("symlink should be followed when FollowSymlinks is true, got %v", reason)
	}
}

func TestFilterMaxFileSize(t *testing.T) {
	f := NewFilter(FilterConfig{MaxFileSize: 100})
	if reason := f.DecideFile("small.txt", 50); reason != SkipNone {
		t.Errorf("reason = %v, want SkipNone", reason)
	}
	if reason := f.DecideFile("large.bin", 500); reason != SkipTooLarge {
		t.Errorf("reason = %v, want SkipTooLarge", reason)
	}
}

func TestFilterExceedsFileCap(t *testing.T) {
	f := NewFilter(FilterConfig{MaxFilesPerDir: 3})
	if f.ExceedsFileCap(3) {
		t.Error("3 entries should not exceed a cap of 3")
	}
	if !f.ExceedsFileCap(4) {
		t.Error("4 entries should exceed a cap of 3")
	}
}

func TestDepth(t *testing.T) {
	cases := map[string]int{
		".":     0,
		"":      0,
		"a":     1,
		"a/b":   2,
		"a/b/c": 3,
	}
	for path, want := range cases {
		if got := Depth(path); got != want {
			t.Errorf("Depth(%q) = %d, want %d", path, got, want)
		}
	}
}
