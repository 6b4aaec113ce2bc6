package config

import "testing"

func TestEnvKey(t *testing.T) {
	tests := []struct {
		unit   string
		option string
		want   string
	}{
		{unit: "foo", option: "a", want: "JEEV_FOO_A"},
		{unit: "team.jira", option: "base_url", want: "JEEV_TEAM_JIRA_BASE_URL"},
		{unit: "", option: "name", want: "JEEV_NAME"},
	}

	for _, tt := range tests {
		if got := EnvKey(tt.unit, tt.option); got != tt.want {
			t.Fatalf("EnvKey(%q, %q) = %q, want %q", tt.unit, tt.option, got, tt.want)
		}
	}
}

func TestResolvePrefersRawOverEnvironment(t *testing.T) {
	env := MapEnviron(map[string]string{"JEEV_FOO_A": "9"})

	value, source := Resolve("foo", "a", map[string]any{"a": 2}, env)
	if source != SourceRaw || value != 2 {
		t.Fatalf("Resolve = (%v, %s), want (2, raw)", value, source)
	}

	value, source = Resolve("foo", "a", nil, env)
	if source != SourceEnv || value != "9" {
		t.Fatalf("Resolve = (%v, %s), want (9, env)", value, source)
	}

	value, source = Resolve("foo", "b", nil, env)
	if source != SourceNone || value != nil {
		t.Fatalf("Resolve = (%v, %s), want (nil, none)", value, source)
	}
}

func TestResolveWithoutEnvironment(t *testing.T) {
	if _, source := Resolve("foo", "a", nil, nil); source != SourceNone {
		t.Fatalf("source = %s, want none", source)
	}
}
