// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes refdeck reference tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/refservice"
)

const contractURI = "refdeck://reference-format"

// Server wraps the MCP server with refdeck tools.
type Server struct {
	mcp *server.MCPServer
	svc *refservice.Service
}

// New creates a new MCP server with all refdeck tools registered.
func New(svc *refservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"refdeck",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	fields := strings.Join(svc.Fields(), ", ")

	s.mcp.AddTool(mcp.NewTool("list_references",
		mcp.WithDescription("List the reference panel of a note: every configured field with its entries, "+
			"their kind (note, url, text) and display text."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.listReferences)

	s.mcp.AddTool(mcp.NewTool("add_reference",
		mcp.WithDescription("Append a reference to a field of a note. Give exactly one of target "+
			"(a note to link), url, or text. Read the format via get_reference_contract first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note to edit")),
		mcp.WithString("field", mcp.Description("Reference field, one of: "+fields+" (default "+svc.DefaultField()+")")),
		mcp.WithString("target", mcp.Description("Note to link to, as a path or link text")),
		mcp.WithString("subpath", mcp.Description("Optional heading or ^block inside target")),
		mcp.WithString("url", mcp.Description("http(s) URL to add")),
		mcp.WithString("text", mcp.Description("Plain text entry to add")),
	), s.addReference)

	s.mcp.AddTool(mcp.NewTool("remove_reference",
		mcp.WithDescription("Remove the entry at a zero-based position from a field of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note to edit")),
		mcp.WithString("field", mcp.Description("Reference field (default "+svc.DefaultField()+")")),
		mcp.WithNumber("position", mcp.Required(), mcp.Description("Zero-based position of the entry")),
	), s.removeReference)

	s.mcp.AddTool(mcp.NewTool("move_reference",
		mcp.WithDescription("Move an entry of a field of a note to a new zero-based position."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note to edit")),
		mcp.WithString("field", mcp.Description("Reference field (default "+svc.DefaultField()+")")),
		mcp.WithNumber("from", mcp.Required(), mcp.Description("Current position")),
		mcp.WithNumber("to", mcp.Required(), mcp.Description("New position")),
	), s.moveReference)

	s.mcp.AddTool(mcp.NewTool("find_referrers",
		mcp.WithDescription("Find every note whose reference fields point at the given entry "+
			"(a note path, [[link]], URL or text)."),
		mcp.WithString("entry", mcp.Required(), mcp.Description("Entry or note path to look up")),
	), s.findReferrers)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Fuzzy search notes by path and title, to find link targets. "+
			"Set full_text to search note bodies and tags instead."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithBoolean("full_text", mcp.Description("Search bodies and tags via the index")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("get_reference_contract",
		mcp.WithDescription("Returns the reference list format contract. "+
			"Call this before editing reference fields to ensure correct structure."),
	), s.getReferenceContract)

	// Resource: reference format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Reference Format Contract",
			mcp.WithResourceDescription("How reference lists are stored in note frontmatter."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) listReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Panel(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", path, err)), nil
	}
	if len(p.Sections) == 0 {
		return mcp.NewToolResultText("no references"), nil
	}
	var b strings.Builder
	for _, sec := range p.Sections {
		fmt.Fprintf(&b, "%s:\n", sec.Field)
		for i, e := range sec.Entries {
			fmt.Fprintf(&b, "  %d. [%s] %s", i, e.Kind, e.Raw)
			if e.Display != e.Raw {
				fmt.Fprintf(&b, " (%s)", e.Display)
			}
			b.WriteByte('\n')
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) addReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field := req.GetString("field", "")
	target := req.GetString("target", "")
	url := req.GetString("url", "")
	text := req.GetString("text", "")

	var cv refservice.CommitView
	switch {
	case target != "" && url == "" && text == "":
		cv, err = s.svc.AddNoteReference(ctx, path, field, target, req.GetString("subpath", ""))
	case url != "" && target == "" && text == "":
		if !reference.IsURL(strings.TrimSpace(url)) {
			return mcp.NewToolResultError("url must start with http:// or https://"), nil
		}
		cv, err = s.svc.AddReference(ctx, path, field, strings.TrimSpace(url))
	case text != "" && target == "" && url == "":
		cv, err = s.svc.AddReference(ctx, path, field, text)
	default:
		return mcp.NewToolResultError("give exactly one of target, url or text"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.commitResult(path, cv), nil
}

func (s *Server) removeReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos, err := req.RequireInt("position")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cv, err := s.svc.RemoveReference(ctx, path, req.GetString("field", ""), pos)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.commitResult(path, cv), nil
}

func (s *Server) moveReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := req.RequireInt("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireInt("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cv, err := s.svc.MoveReference(ctx, path, req.GetString("field", ""), from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.commitResult(path, cv), nil
}

func (s *Server) findReferrers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := req.RequireString("entry")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rr, err := s.svc.Referrers(ctx, entry)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rr) == 0 {
		return mcp.NewToolResultText("no referrers found"), nil
	}
	lines := make([]string, 0, len(rr))
	for _, r := range rr {
		lines = append(lines, fmt.Sprintf("%s\t%s[%d]\t%s", r.Source, r.Field, r.Position, r.Entry))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var results any
	if req.GetBool("full_text", false) {
		results, err = s.svc.SearchText(ctx, query, 20)
	} else {
		results, err = s.svc.SearchDocuments(ctx, query, 20)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getReferenceContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReferenceFormatContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ReferenceFormatContract,
		},
	}, nil
}

func (s *Server) commitResult(path string, cv refservice.CommitView) *mcp.CallToolResult {
	if len(cv.Result.Written) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("unchanged: %s", path))
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (%s)", path, strings.Join(cv.Result.Written, ", ")))
}
