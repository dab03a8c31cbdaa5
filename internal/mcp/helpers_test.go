package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmem/internal/docs"
	"github.com/Aman-CERP/amanmem/internal/embed"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// --- Test Helpers ---

// newTestService builds a memory service over an in-memory store and the
// static embedders.
func newTestService(t *testing.T) *memory.Service {
	t.Helper()

	st, err := store.Open("")
	require.NoError(t, err)
	kw, err := store.NewKeywordIndex(store.KeywordBackendSQLite, st, "")
	require.NoError(t, err)
	vx, err := store.NewHNSWVectorIndex(store.HNSWConfig{})
	require.NoError(t, err)
	provider := embed.NewProvider(embed.NewFactory(embed.FactoryOptions{}), "static-384")

	t.Cleanup(func() {
		_ = provider.Close()
		_ = kw.Close()
		_ = vx.Close()
		_ = st.Close()
	})
	return memory.New(memory.Deps{Store: st, Keyword: kw, Vector: vx, Provider: provider}, memory.Options{
		DefaultProject: "alpha",
		Search:         search.DefaultConfig(),
	})
}

// writeDocs creates files under root; keys are slash-separated relative paths.
func writeDocs(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// newTestServer builds a server whose documentation root is a temp dir with
// a docs/ source.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	svc := newTestService(t)
	root := t.TempDir()
	ix := docs.NewIndexer(svc, docs.Options{Root: root, Dirs: []string{"docs"}, Project: "alpha"})
	srv, err := NewServer(svc, Options{
		Docs:   ix,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return srv, root
}

// connect wires a client session to srv over in-memory transports.
func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		_ = serverSession.Wait()
	})
	return session
}

// callTool invokes a tool and returns its result.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// firstText returns the first text content of a result.
func firstText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

// decodeStructured re-marshals the structured content of a result into out.
func decodeStructured(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	require.NotNil(t, res.StructuredContent)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
