package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jcdickinson/docref/internal/daemon"
	"github.com/jcdickinson/docref/internal/location"
	"github.com/jcdickinson/docref/internal/rpc"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

//go:embed instructions.md
var instructions string

type Server struct {
	mcpServer *server.MCPServer
	client    *daemon.Client
}

func NewServer(socketPath string) (*Server, error) {
	client, err := daemon.ConnectOrSpawn(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return newServer(client), nil
}

func newServer(client *daemon.Client) *Server {
	s := &Server{client: client}

	mcpServer := server.NewMCPServer(
		"docref",
		"0.1.0",
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("load_module",
			mcp.WithDescription("Load per-target documentable trees (YAML files) as one output module, merging them. Loading an already loaded module merges into it unless replace is set."),
			mcp.WithString("module",
				mcp.Description("Module name, must match the trees' module field"),
				mcp.Required(),
			),
			mcp.WithArray("files",
				mcp.Description("Absolute paths of the YAML trees, one per target"),
				mcp.Items(map[string]interface{}{"type": "string"}),
				mcp.Required(),
			),
			mcp.WithString("module_dir",
				mcp.Description("Directory of the module inside the output root (default: none)"),
			),
			mcp.WithBoolean("replace",
				mcp.Description("Discard the loaded module instead of merging into it"),
			),
		),
		s.handleLoadModule,
	)

	mcpServer.AddTool(
		mcp.NewTool("resolve_link",
			mcp.WithDescription("Resolve an ID to an output path: locally, then in other loaded modules, then in external documentation."),
			mcp.WithString("module",
				mcp.Description("Module the link is written in"),
				mcp.Required(),
			),
			mcp.WithString("id",
				mcp.Description("Target ID, e.g. com.example/Foo////"),
				mcp.Required(),
			),
			mcp.WithString("from",
				mcp.Description("ID of the page the link appears on; omit for a path from the output root"),
			),
			mcp.WithArray("platforms",
				mcp.Description("Only accept pages documented on these platforms"),
				mcp.Items(map[string]interface{}{"type": "string"}),
			),
		),
		s.handleResolveLink,
	)

	mcpServer.AddTool(
		mcp.NewTool("external_link",
			mcp.WithDescription("Resolve an ID against the configured external documentation sets only."),
			mcp.WithString("id",
				mcp.Description("Target ID"),
				mcp.Required(),
			),
		),
		s.handleExternalLink,
	)

	mcpServer.AddTool(
		mcp.NewTool("rewrite_markdown",
			mcp.WithDescription("Replace dri:<ID> link destinations in markdown with resolved paths."),
			mcp.WithString("module",
				mcp.Description("Module the markdown belongs to"),
				mcp.Required(),
			),
			mcp.WithString("markdown",
				mcp.Description("Markdown source"),
				mcp.Required(),
			),
			mcp.WithString("from",
				mcp.Description("ID of the page the markdown is rendered on"),
			),
			mcp.WithArray("platforms",
				mcp.Description("Only accept pages documented on these platforms"),
				mcp.Items(map[string]interface{}{"type": "string"}),
			),
		),
		s.handleRewriteMarkdown,
	)

	mcpServer.AddTool(
		mcp.NewTool("escape_filename",
			mcp.WithDescription("Show the path segment a class or member name is written to."),
			mcp.WithString("name",
				mcp.Description("Name to escape"),
				mcp.Required(),
			),
		),
		handleEscapeFilename,
	)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResource(
		mcp.NewResource(
			"docref://status",
			"Loaded modules and external documentation",
			mcp.WithResourceDescription("Modules known to the daemon and the external documentation sets it has loaded."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleStatusResource,
	)
}

func stringsArg(args map[string]any, name string) []string {
	raw, ok := args[name]
	if !ok {
		return nil
	}
	data, _ := json.Marshal(raw)
	var out []string
	json.Unmarshal(data, &out)
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	resultJSON, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(resultJSON))
}

func (s *Server) handleLoadModule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	module, _ := args["module"].(string)
	if module == "" {
		return mcp.NewToolResultError("missing required parameter: module"), nil
	}
	files := stringsArg(args, "files")
	if len(files) == 0 {
		return mcp.NewToolResultError("missing required parameter: files"), nil
	}

	loadReq := rpc.LoadRequest{Module: module, Files: files}
	loadReq.ModuleDir, _ = args["module_dir"].(string)
	loadReq.Replace, _ = args["replace"].(bool)

	res, err := s.client.Load(ctx, loadReq, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load module: %v", err)), nil
	}
	if res.Error != "" {
		return mcp.NewToolResultError(res.Error), nil
	}
	return jsonResult(res), nil
}

func (s *Server) handleResolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	module, _ := args["module"].(string)
	id, _ := args["id"].(string)
	if module == "" || id == "" {
		return mcp.NewToolResultError("missing required parameters: module, id"), nil
	}

	resolveReq := rpc.ResolveRequest{Module: module, ID: id, Platforms: stringsArg(args, "platforms")}
	resolveReq.From, _ = args["from"].(string)

	resp, err := s.client.Resolve(ctx, resolveReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) handleExternalLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	resp, err := s.client.External(ctx, rpc.ExternalRequest{ID: id})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("external lookup failed: %v", err)), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) handleRewriteMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	module, _ := args["module"].(string)
	markdown, _ := args["markdown"].(string)
	if module == "" {
		return mcp.NewToolResultError("missing required parameter: module"), nil
	}

	rewriteReq := rpc.RewriteRequest{Module: module, Markdown: markdown, Platforms: stringsArg(args, "platforms")}
	rewriteReq.From, _ = args["from"].(string)

	resp, err := s.client.Rewrite(ctx, rewriteReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rewrite failed: %v", err)), nil
	}
	return jsonResult(resp), nil
}

func handleEscapeFilename(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, ok := req.GetArguments()["name"].(string)
	if !ok {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	return mcp.NewToolResultText(location.EscapeFilename(name)), nil
}

func (s *Server) handleStatusResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	status, err := s.client.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
