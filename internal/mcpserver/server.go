// Package mcpserver provides an MCP (Model Context Protocol) server
// that lets an LLM browse Wikipedia through a wikigraph session via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/index"
	"github.com/Tasour/wikipedia-graph/internal/session"
	"github.com/Tasour/wikipedia-graph/internal/title"
)

// GraphURI is the resource exposing the current graph snapshot.
const GraphURI = "wikigraph://graph"

// Searcher searches Wikipedia titles.
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]string, error)
}

// VisitedIndex searches pages visited in this session.
type VisitedIndex interface {
	Search(query string, limit int) ([]index.SearchResult, error)
	Backlinks(target string) ([]string, error)
}

// Server wraps the MCP server with wikigraph tools.
type Server struct {
	mcp     *server.MCPServer
	sess    *session.Session
	search  Searcher
	visited VisitedIndex
}

// New creates a new MCP server with all wikigraph tools registered.
// search and visited may be nil; their tools then report an error.
func New(sess *session.Session, search Searcher, visited VisitedIndex) *Server {
	s := &Server{sess: sess, search: search, visited: visited}

	s.mcp = server.NewMCPServer(
		"wikigraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Open a Wikipedia article. The article becomes a node of the session graph, "+
			"linked to every visited article it links to or that links to it."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Article title, e.g. \"Alan Turing\"")),
		mcp.WithString("section", mcp.Description("Optional section anchor inside the article")),
	), s.navigate)

	s.mcp.AddTool(mcp.NewTool("go_back",
		mcp.WithDescription("Return to the previously visited article."),
	), s.goBack)

	s.mcp.AddTool(mcp.NewTool("go_forward",
		mcp.WithDescription("Re-open the article left with go_back."),
	), s.goForward)

	s.mcp.AddTool(mcp.NewTool("delete_current",
		mcp.WithDescription("Remove the current article from the history and the graph."),
	), s.deleteCurrent)

	s.mcp.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Return the session graph as JSON: nodes and links between visited articles."),
	), s.getGraph)

	s.mcp.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Return the back and forward navigation stacks as JSON."),
	), s.getHistory)

	s.mcp.AddTool(mcp.NewTool("search_wikipedia",
		mcp.WithDescription("Search Wikipedia article titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchWikipedia)

	s.mcp.AddTool(mcp.NewTool("search_visited",
		mcp.WithDescription("Full-text search through the articles visited in this session."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchVisited)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the plain text of a visited article."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of a visited article")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all visited articles that link to the specified article."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Article title to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddResource(
		mcp.NewResource(GraphURI, "Session Graph",
			mcp.WithResourceDescription("Nodes and links of the articles visited in this session."),
			mcp.WithMIMEType("application/json"),
		),
		s.readGraphResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// pageSummary is what navigation tools report; content is read with read_page.
type pageSummary struct {
	Title   string `json:"title"`
	Section string `json:"section,omitempty"`
	PageID  int64  `json:"pageid"`
	URL     string `json:"url"`
	State   string `json:"state"`
}

func pageResult(p *session.Page, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if errors.Is(err, apperr.ErrFetch) && !errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(session.FailedPlaceholder + ": " + err.Error()), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if p == nil {
		return mcp.NewToolResultText("history is empty"), nil
	}
	return jsonResult(pageSummary{
		Title:   p.Title,
		Section: p.Section,
		PageID:  p.PageID,
		URL:     p.URL,
		State:   string(p.State),
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) navigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return pageResult(s.sess.Navigate(ctx, t, req.GetString("section", "")))
}

func (s *Server) goBack(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return pageResult(s.sess.Back(ctx))
}

func (s *Server) goForward(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return pageResult(s.sess.Forward(ctx))
}

func (s *Server) deleteCurrent(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return pageResult(s.sess.Delete(ctx))
}

func (s *Server) getGraph(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.sess.Graph()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (s *Server) getHistory(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sess.History())
}

func (s *Server) searchWikipedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.search == nil {
		return mcp.NewToolResultError("wikipedia search is not configured"), nil
	}
	titles, err := s.search.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(titles) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	return mcp.NewToolResultText(strings.Join(titles, "\n")), nil
}

func (s *Server) searchVisited(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.visited == nil {
		return mcp.NewToolResultError("visited index is not configured"), nil
	}
	results, err := s.visited.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, ok := s.sess.Page(t)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not visited: %s", t)), nil
	}
	return mcp.NewToolResultText(e.Text), nil
}

func (s *Server) getBacklinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.visited == nil {
		return mcp.NewToolResultError("visited index is not configured"), nil
	}
	bl, err := s.visited.Backlinks(title.Normalize(t))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) readGraphResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snap, err := s.sess.Graph()
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GraphURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
