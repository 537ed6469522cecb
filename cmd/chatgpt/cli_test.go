package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/storage"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// writeTestConfig saves a config whose workspace lives in a temp dir.
func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Workspace = filepath.Join(dir, "workspace")
	path := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(path, cfg))
	return path, cfg
}

func openTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := openApp(cfg, false)
	require.NoError(t, err)
	return a
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := runRootCommandForTest("--help")
	require.NoError(t, err)
	for _, name := range []string{"chat", "models", "conversations", "prefs", "profile", "gateway", "onboard", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRootCommandForTest("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, appName+" "+formatVersion()))
	assert.Contains(t, out, "Go: ")

	flagOut, err := runRootCommandForTest("--version")
	require.NoError(t, err)
	assert.Equal(t, out, flagOut)
}

func TestOnboardWritesConfigOnce(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.json")

	out, err := runRootCommandForTest("onboard", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Config written")
	_, err = os.Stat(path)
	require.NoError(t, err)

	out, err = runRootCommandForTest("onboard", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestPrefsCommand(t *testing.T) {
	path, cfg := writeTestConfig(t)

	out, err := runRootCommandForTest("prefs", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No preferences recorded yet.")

	a := openTestApp(t, cfg)
	_, err = a.preferences("local").Record(context.Background(), "나는 사과를 좋아해")
	require.NoError(t, err)
	a.Close()

	out, err = runRootCommandForTest("prefs", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1. like 사과")

	out, err = runRootCommandForTest("prefs", "forget", "사과", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Forgot 사과")

	out, err = runRootCommandForTest("prefs", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No preferences recorded yet.")
}

func TestConversationsCommands(t *testing.T) {
	path, cfg := writeTestConfig(t)

	out, err := runRootCommandForTest("conversations", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations yet.")

	a := openTestApp(t, cfg)
	id, err := a.db.Conversations("local").CreateConversation(context.Background(), "Trip",
		storage.Entry{Text: "where should I go?"}, storage.Entry{Text: "Jeju."})
	require.NoError(t, err)
	a.Close()

	out, err = runRootCommandForTest("conversations", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Trip")

	out, err = runRootCommandForTest("conversations", "show", id, "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[user] where should I go?")
	assert.Contains(t, out, "[assistant] Jeju.")

	_, err = runRootCommandForTest("conversations", "rename", id, "Summer", "trip", "--config", path)
	require.NoError(t, err)
	out, err = runRootCommandForTest("conversations", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Summer trip")

	_, err = runRootCommandForTest("conversations", "delete", id, "--config", path)
	require.NoError(t, err)
	out, err = runRootCommandForTest("conversations", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations yet.")
}

func TestProfileCommandWithoutFacts(t *testing.T) {
	path, _ := writeTestConfig(t)

	out, err := runRootCommandForTest("profile", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No facts remembered yet.")
}

func TestChatRequiresAPIKey(t *testing.T) {
	path, _ := writeTestConfig(t)
	t.Setenv("CHATGPT_PROVIDERS_OPENAI_API_KEY", "")

	_, err := runRootCommandForTest("chat", "-m", "hi", "--config", path)
	require.Error(t, err)
}

func TestAppSharesPreferenceServicePerUser(t *testing.T) {
	_, cfg := writeTestConfig(t)
	a := openTestApp(t, cfg)
	defer a.Close()

	assert.Same(t, a.preferences("discord:1"), a.preferences("discord:1"))
	assert.NotSame(t, a.preferences("discord:1"), a.preferences("discord:2"))
}

func TestRecentUserMessages(t *testing.T) {
	_, cfg := writeTestConfig(t)
	a := openTestApp(t, cfg)
	defer a.Close()

	ctx := context.Background()
	store := a.db.Conversations("local")
	id, err := store.CreateConversation(ctx, "one", storage.Entry{Text: "first"}, storage.Entry{Text: "reply"})
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, id, "user", "second", nil))
	require.NoError(t, store.AppendMessage(ctx, id, "assistant", "reply", nil))
	require.NoError(t, store.AppendMessage(ctx, id, "user", "third", nil))

	got, err := recentUserMessages(ctx, store, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third"}, got)

	got, err = recentUserMessages(ctx, store, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestReadAttachments(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o600))

	got, err := readAttachments([]string{txt, " "})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "notes.txt", got[0].Name)
	assert.True(t, strings.HasPrefix(got[0].ContentType, "text/plain"))
	assert.Equal(t, []byte("hello"), got[0].Data)

	_, err = readAttachments([]string{filepath.Join(dir, "missing.png")})
	require.Error(t, err)
}

func TestREPLLocalCommands(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	var out bytes.Buffer
	r := &repl{app: &app{cfg: config.DefaultConfig()}, out: &out}
	ctx := context.Background()

	require.NoError(t, r.command(ctx, "/model"))
	assert.Contains(t, out.String(), "Model: gpt-4o")

	require.NoError(t, r.command(ctx, "/model gpt-4.1"))
	assert.Equal(t, "gpt-4.1", r.model)

	require.NoError(t, r.command(ctx, "/attach "+file))
	assert.Len(t, r.pending, 1)

	require.Error(t, r.command(ctx, "/attach"))
	require.Error(t, r.command(ctx, "/bogus"))

	assert.True(t, r.handleLine(ctx, "quit"))
	assert.False(t, r.handleLine(ctx, "   "))
}
