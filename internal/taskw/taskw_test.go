package taskw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskstore/internal/metrics"
	tu "github.com/roach88/taskstore/internal/testutil"
)

func TestStripUnsafeChars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "buy milk", "buy milk"},
		{"control bytes", "bu\x00y\x1b mi\x07lk\n", "buy milk"},
		{"tabs and newlines", "a\tb\r\nc", "abc"},
		{"unicode text kept", "café ☕", "café ☕"},
		{"invalid utf8 removed", "ok\xff\xfeok", "okok"},
		{"delete char", "a\x7fb", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripUnsafeChars(tt.in))
		})
	}
}

func TestAcceptablePrefix(t *testing.T) {
	writable := WritableFields("points")

	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{"due", "due", true},
		{"DUE", "due", true},
		{"uuid", "uuid", true},
		{"points", "points", true},
		{"status", "", false},
		{"urgency", "", false},
		{"rc.data.location", "", false},
		{"meeting at 10", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, ok := AcceptablePrefix(tt.prefix, writable)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeArgs(t *testing.T) {
	writable := WritableFields()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "empty",
			args: nil,
			want: nil,
		},
		{
			name: "writable field before separator",
			args: []string{"add", "due:tomorrow", "buy milk"},
			want: []string{"add", "due:tomorrow", "--", "buy milk"},
		},
		{
			name: "read-only field becomes free text",
			args: []string{"add", "status:deleted"},
			want: []string{"add", "--", "status:deleted"},
		},
		{
			name: "prefix is lower-cased",
			args: []string{"modify", "Project:Home"},
			want: []string{"modify", "project:Home", "--"},
		},
		{
			name: "config override is free text",
			args: []string{"add", "rc.data.location:/etc", "x"},
			want: []string{"add", "--", "rc.data.location:/etc", "x"},
		},
		{
			name: "spaced prefix is literal text",
			args: []string{"add", "meeting at 10:30"},
			want: []string{"add", "--", "meeting at 10:30"},
		},
		{
			name: "value keeps later colons",
			args: []string{"add", "due:2024-01-01T10:00"},
			want: []string{"add", "due:2024-01-01T10:00", "--"},
		},
		{
			name: "non-printables stripped before classification",
			args: []string{"add", "d\x00ue:today", "hi\x1b"},
			want: []string{"add", "due:today", "--", "hi"},
		},
		{
			name: "subcommand passed through untouched",
			args: []string{"add\x00"},
			want: []string{"add\x00", "--"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeArgs(writable, tt.args...))
		})
	}
}

func TestWritableFields_ExcludesReadOnly(t *testing.T) {
	fields := WritableFields("status", "points")

	assert.True(t, fields["description"])
	assert.True(t, fields["uuid"], "uuid is accepted for filtering")
	assert.True(t, fields["points"])
	assert.False(t, fields["status"], "extras cannot re-enable read-only fields")
	assert.False(t, fields["id"])
}

func TestClient_ExecuteSafe_PassesSanitizedVector(t *testing.T) {
	bin := tu.FakeBinary(t, "task", tu.EchoArgsScript)
	c := NewClient("/store/.taskrc", WithBinary(bin))

	stdout, _, err := c.ExecuteSafe(context.Background(), "add", "due:tomorrow", "status:deleted", "buy\x07 milk")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"rc:/store/.taskrc",
		"rc.json.array=TRUE",
		"rc.verbose=nothing",
		"rc.confirmation=no",
		"add",
		"due:tomorrow",
		"--",
		"status:deleted",
		"buy milk",
	}, strings.Split(strings.TrimSpace(stdout), "\n"))
}

func TestClient_Execute_NonZeroExit(t *testing.T) {
	bin := tu.FakeBinary(t, "task", "echo 'partial output'\necho 'Could not connect' >&2\nexit 3\n")
	c := NewClient("/store/.taskrc", WithBinary(bin))
	before := testutil.ToFloat64(metrics.EngineCommandsTotal.WithLabelValues(metrics.Fail))

	stdout, stderr, err := c.Execute(context.Background(), "sync")
	require.Error(t, err)
	assert.True(t, IsCommandError(err))

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.Code)
	assert.Equal(t, "partial output", ce.Stdout)
	assert.Equal(t, "Could not connect", ce.Stderr)
	assert.Equal(t, c.Command("sync"), ce.Command)
	assert.Equal(t, ce.Stdout, stdout)
	assert.Equal(t, ce.Stderr, stderr)
	assert.Contains(t, err.Error(), "code 3")

	after := testutil.ToFloat64(metrics.EngineCommandsTotal.WithLabelValues(metrics.Fail))
	assert.Equal(t, before+1, after)
}

func TestClient_Execute_MissingBinary(t *testing.T) {
	c := NewClient("/store/.taskrc", WithBinary("/nonexistent/task"))

	_, _, err := c.Execute(context.Background(), "sync")
	require.Error(t, err)
	assert.False(t, IsCommandError(err))
}

func TestClient_Sync(t *testing.T) {
	bin := tu.FakeBinary(t, "task", `[ "$5" = "sync" ] && [ "$6" = "init" ] || exit 9
`)
	c := NewClient("/store/.taskrc", WithBinary(bin))

	require.NoError(t, c.Sync(context.Background(), true))

	err := c.Sync(context.Background(), false)
	require.Error(t, err)
	assert.True(t, IsCommandError(err))
}

func TestClient_Export(t *testing.T) {
	bin := tu.FakeBinary(t, "task", `echo '[{"uuid":"a1","description":"buy milk","status":"pending"}]'
`)
	c := NewClient("/store/.taskrc", WithBinary(bin))

	tasks, err := c.Export(context.Background(), "status:pending")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "buy milk", tasks[0]["description"])
}

func TestClient_Export_Empty(t *testing.T) {
	bin := tu.FakeBinary(t, "task", "exit 0\n")
	c := NewClient("/store/.taskrc", WithBinary(bin))

	tasks, err := c.Export(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestClient_WithWritableFields(t *testing.T) {
	c := NewClient("/store/.taskrc", WithWritableFields("Points"))
	assert.Contains(t, c.Fields(), "points")
	assert.NotContains(t, c.Fields(), "status")
}

func TestClient_WithWritableFields_SkipsReadOnly(t *testing.T) {
	c := NewClient("/store/.taskrc", WithWritableFields("status", "ID", "urgency", "entry", "mask", "points"))
	for _, f := range []string{"status", "id", "urgency", "entry", "mask"} {
		assert.NotContains(t, c.Fields(), f)
	}
	assert.Contains(t, c.Fields(), "points")
	assert.Equal(t, []string{"modify", "--", "status:deleted"},
		SanitizeArgs(c.writable, "modify", "status:deleted"))
}
