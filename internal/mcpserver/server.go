// Package mcpserver exposes a patch graph and its slot store as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/cwbudde/algo-patch/synth/patch"
	"github.com/cwbudde/algo-patch/synth/routing"
	"github.com/cwbudde/algo-patch/synth/state"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server routes MCP tool calls to a graph and a slot store.
type Server struct {
	graph  *patch.Graph
	store  *state.Store
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New registers every patch_* tool.
func New(g *patch.Graph, store *state.Store, version string, opts ...Option) *Server {
	s := &Server{
		graph:  g,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		mcp:    server.NewMCPServer("algo-patch", version, server.WithToolCapabilities(false)),
	}

	for _, opt := range opts {
		opt(s)
	}

	port := func(name, desc string) mcp.ToolOption {
		return mcp.WithString(name, mcp.Required(), mcp.Description(desc))
	}

	s.add(mcp.NewTool("patch_list-modules",
		mcp.WithDescription("Lists every module with its ports, parameters and current values."),
	), s.listModules)
	s.add(mcp.NewTool("patch_get-param",
		mcp.WithDescription("Returns the current value of a module parameter."),
		mcp.WithString("module", mcp.Required(), mcp.Description("Module id, e.g. vcf.")),
		mcp.WithString("param", mcp.Required(), mcp.Description("Parameter name, e.g. cutoff.")),
	), s.getParam)
	s.add(mcp.NewTool("patch_set-param",
		mcp.WithDescription("Sets a module parameter. Values outside the range are clamped by the module."),
		mcp.WithString("module", mcp.Required(), mcp.Description("Module id, e.g. vcf.")),
		mcp.WithString("param", mcp.Required(), mcp.Description("Parameter name, e.g. cutoff.")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("New value.")),
	), s.setParam)
	s.add(mcp.NewTool("patch_connect",
		mcp.WithDescription("Connects an output to an input, replacing any cable already on that input."),
		port("from", "Output port as module.port, e.g. vco.out."),
		port("to", "Input port as module.port, e.g. vcf.in."),
	), s.connect)
	s.add(mcp.NewTool("patch_disconnect",
		mcp.WithDescription("Removes a cable. Without from, removes every cable into the input."),
		mcp.WithString("from", mcp.Description("Output port as module.port.")),
		port("to", "Input port as module.port."),
	), s.disconnect)
	s.add(mcp.NewTool("patch_list-cables",
		mcp.WithDescription("Lists all cables."),
	), s.listCables)
	s.add(mcp.NewTool("patch_share",
		mcp.WithDescription("Returns a compact share token for the current patch."),
	), s.share)
	s.add(mcp.NewTool("patch_open",
		mcp.WithDescription("Replaces the current patch with one decoded from a share token."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Share token.")),
	), s.open)
	s.add(mcp.NewTool("patch_save",
		mcp.WithDescription("Saves the current patch into a named slot."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Slot name.")),
	), s.save)
	s.add(mcp.NewTool("patch_load",
		mcp.WithDescription("Replaces the current patch with a named slot."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Slot name.")),
	), s.load)
	s.add(mcp.NewTool("patch_list-slots",
		mcp.WithDescription("Lists saved slot names."),
	), s.listSlots)
	s.add(mcp.NewTool("patch_start",
		mcp.WithDescription("Starts audio processing."),
	), s.start)
	s.add(mcp.NewTool("patch_stop",
		mcp.WithDescription("Stops audio processing. Cables and parameters are kept."),
	), s.stop)

	return s
}

func (s *Server) add(tool mcp.Tool, h server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debug("mcp tool call", "tool", req.Params.Name)
		return h(ctx, req)
	})
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves tool calls on stdin and stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type moduleInfo struct {
	ID      string             `json:"id"`
	Label   string             `json:"label"`
	Inputs  []string           `json:"inputs"`
	Outputs []string           `json:"outputs"`
	Params  map[string]float64 `json:"params"`
	Live    bool               `json:"live"`
}

func (s *Server) listModules(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs := s.graph.ModuleDefs()
	out := make([]moduleInfo, 0, len(defs))

	for _, def := range defs {
		info := moduleInfo{ID: def.ID, Label: def.Label, Live: s.graph.Live(def.ID)}
		info.Params, _ = s.graph.Params(def.ID)

		for _, p := range def.Inputs {
			info.Inputs = append(info.Inputs, p.Name)
		}

		for _, p := range def.Outputs {
			info.Outputs = append(info.Outputs, p.Name)
		}

		out = append(out, info)
	}

	return jsonResult(out)
}

func (s *Server) getParam(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module, param, errRes := moduleParam(req)
	if errRes != nil {
		return errRes, nil
	}

	v, ok := s.graph.GetParameter(module, param)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no parameter %s.%s", module, param)), nil
	}

	return mcp.NewToolResultText(cast.ToString(v)), nil
}

func (s *Server) setParam(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module, param, errRes := moduleParam(req)
	if errRes != nil {
		return errRes, nil
	}

	v, err := cast.ToFloat64E(req.GetArguments()["value"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("value: %v", err)), nil
	}

	if err := s.graph.SetParameter(module, param, v); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s.%s = %s", module, param, cast.ToString(v))), nil
}

func moduleParam(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	module, err := req.RequireString("module")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}

	param, err := req.RequireString("param")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}

	return module, param, nil
}

func portArg(req mcp.CallToolRequest, name string) (routing.PortRef, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return routing.PortRef{}, mcp.NewToolResultError(err.Error())
	}

	ref, err := routing.ParsePortRef(strings.TrimSpace(raw))
	if err != nil {
		return routing.PortRef{}, mcp.NewToolResultError(err.Error())
	}

	return ref, nil
}

func (s *Server) connect(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, errRes := portArg(req, "from")
	if errRes != nil {
		return errRes, nil
	}

	to, errRes := portArg(req, "to")
	if errRes != nil {
		return errRes, nil
	}

	if err := s.graph.Connect(from, to); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("connected " + patch.Cable{From: from, To: to}.String()), nil
}

func (s *Server) disconnect(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	to, errRes := portArg(req, "to")
	if errRes != nil {
		return errRes, nil
	}

	if cast.ToString(req.GetArguments()["from"]) == "" {
		s.graph.DisconnectAllInto(to)
		return mcp.NewToolResultText("disconnected all cables into " + to.String()), nil
	}

	from, errRes := portArg(req, "from")
	if errRes != nil {
		return errRes, nil
	}

	s.graph.Disconnect(from, to)

	return mcp.NewToolResultText("disconnected " + patch.Cable{From: from, To: to}.String()), nil
}

func (s *Server) listCables(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cables := s.graph.Connections()

	lines := make([]string, len(cables))
	for i, c := range cables {
		lines[i] = c.String()
	}

	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) share(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := state.EncodeCompact(s.graph.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("share: %w", err)
	}

	return mcp.NewToolResultText(token), nil
}

func (s *Server) open(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := state.DecodeCompact(token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.graph.Restore(snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("opened patch with %d cables", len(s.graph.Connections()))), nil
}

func (s *Server) save(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.store.Save(name, s.graph.Snapshot()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("saved %q", name)), nil
}

func (s *Server) load(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := s.store.Load(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.graph.Restore(snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("loaded %q", name)), nil
}

func (s *Server) listSlots(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.store.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(names)
}

func (s *Server) start(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.graph.Start(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("running"), nil
}

func (s *Server) stop(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.graph.Stop()
	return mcp.NewToolResultText("stopped"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}
