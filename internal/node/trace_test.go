package node

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/session"
)

// logLines decodes a JSON handler's output, one record per line
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func tracingSession(t *testing.T, text string) session.Launcher {
	t.Helper()
	return replay(t,
		`{"type":"system","subtype":"init","tools":["Bash"]}`,
		`{"type":"user","message":{"content":[{"type":"text","text":"user text"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":`+mustJSON(t, text)+`}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{}}]}}`,
		resultLine,
	)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestDebugTraces(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	long := strings.Repeat("a", 80) + strings.Repeat("b", 70)

	n := New(WithLauncher(tracingSession(t, long)), WithLogger(logger))
	p := params("hi", func(p *domain.Parameters) { p.AdditionalOptions.Debug = true })

	_, err := n.Execute(context.Background(), &fakeHost{params: []domain.Parameters{p}})
	require.NoError(t, err)

	var texts, tools []string
	for _, rec := range logLines(t, &buf) {
		assert.Equal(t, Name, rec["node"])
		assert.Equal(t, float64(0), rec["item"])
		switch rec["msg"] {
		case "assistant":
			texts = append(texts, rec["text"].(string))
		case "tool use":
			tools = append(tools, rec["tool"].(string))
		}
	}

	require.Len(t, texts, 1, "only assistant text blocks are traced")
	assert.Equal(t, long[:100]+"...", texts[0])
	assert.Equal(t, []string{"Bash"}, tools)
	assert.NotContains(t, buf.String(), "user text")
}

func TestDebugTraces_ShortTextKeepsMarker(t *testing.T) {
	var buf bytes.Buffer
	n := New(WithLauncher(tracingSession(t, "short")), WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	p := params("hi", func(p *domain.Parameters) { p.AdditionalOptions.Debug = true })

	_, err := n.Execute(context.Background(), &fakeHost{params: []domain.Parameters{p}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"text":"short..."`)
}

func TestDebugTraces_Off(t *testing.T) {
	var buf bytes.Buffer
	n := New(WithLauncher(tracingSession(t, "hidden")), WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	_, err := n.Execute(context.Background(), &fakeHost{params: []domain.Parameters{params("hi")}})
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "records without debug log nothing")
}

func TestDebugTraces_MultibyteText(t *testing.T) {
	var buf bytes.Buffer
	text := strings.Repeat("€", 150)
	n := New(WithLauncher(tracingSession(t, text)), WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	p := params("hi", func(p *domain.Parameters) { p.AdditionalOptions.Debug = true })

	_, err := n.Execute(context.Background(), &fakeHost{params: []domain.Parameters{p}})
	require.NoError(t, err)

	var traced string
	for _, rec := range logLines(t, &buf) {
		if rec["msg"] == "assistant" {
			traced = rec["text"].(string)
		}
	}
	prefix := strings.TrimSuffix(traced, "...")
	assert.True(t, utf8.ValidString(prefix))
	assert.Equal(t, 100, utf8.RuneCountInString(prefix))
	assert.Equal(t, strings.Repeat("€", 100), prefix)
}

func TestRunePrefix(t *testing.T) {
	assert.Equal(t, "ab", runePrefix("abc", 2))
	assert.Equal(t, "abc", runePrefix("abc", 5))
	assert.Equal(t, "€ü", runePrefix("€üx", 2))
	assert.Equal(t, "", runePrefix("", 3))
}

func TestExecute_DefaultAliasesSendSonnet(t *testing.T) {
	for _, model := range []string{
		"claude-3-opus-20240229",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-sonnet-4-20250514",
	} {
		t.Run(model, func(t *testing.T) {
			var got string
			n := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithLauncher(launcherFunc(
				func(_ context.Context, opts session.QueryOptions) (session.Session, error) {
					got = opts.Model
					return &session.SliceSession{}, nil
				})))
			p := params("hi", func(p *domain.Parameters) { p.Model = model })

			_, err := n.Execute(context.Background(), &fakeHost{params: []domain.Parameters{p}})
			require.NoError(t, err)
			assert.Equal(t, "sonnet", got)
		})
	}
}

func TestExecute_HugeTimeoutDoesNotExpire(t *testing.T) {
	n := newTestNode(replay(t, resultLine))
	p := params("hi", withTimeout(math.MaxInt), withFormat(domain.FormatText))

	out, err := n.Execute(context.Background(), &fakeHost{params: []domain.Parameters{p}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "done", toMap(t, out[0].JSON)["result"])
}
