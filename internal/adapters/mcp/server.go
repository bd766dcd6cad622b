package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// Tools exposes the pipeline and entity reads as MCP tools.
type Tools struct {
	pipeline ports.DocumentPipeline
	entities ports.EntityService
	resumes  ports.ResumeParser
}

func NewTools(pipeline ports.DocumentPipeline, entities ports.EntityService) *Tools {
	return &Tools{pipeline: pipeline, entities: entities}
}

// WithResumes adds the parse_resume tool.
func (t *Tools) WithResumes(resumes ports.ResumeParser) *Tools {
	t.resumes = resumes
	return t
}

func (t *Tools) Server(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("classify_document",
		mcp.WithDescription("Classify raw document text and extract its structured fields. Nothing is stored."),
		mcp.WithString("text", mcp.Required(), mcp.Description("OCR text of the document")),
	), t.classifyDocument)

	s.AddTool(mcp.NewTool("get_entity",
		mcp.WithDescription("Load a candidate, employee or tax filing with its legal documents and discrepancies."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("candidates, employees or tax-filings")),
		mcp.WithString("id", mcp.Required(), mcp.Description("internal or external entity id")),
	), t.getEntity)

	s.AddTool(mcp.NewTool("analyze_discrepancies",
		mcp.WithDescription("Preview the discrepancies a profile patch would produce, without saving it."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("candidates, employees or tax-filings")),
		mcp.WithString("id", mcp.Required(), mcp.Description("internal or external entity id")),
		mcp.WithObject("patch", mcp.Required(), mcp.Description("snake_case entity fields to change")),
	), t.analyzeDiscrepancies)

	if t.resumes != nil {
		s.AddTool(mcp.NewTool("parse_resume",
			mcp.WithDescription("Extract contact details, skills, education and work history from CV text. Nothing is stored."),
			mcp.WithString("text", mcp.Required(), mcp.Description("plain text of the CV")),
		), t.parseResume)
	}

	return s
}

func (t *Tools) classifyDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := t.pipeline.ClassifyAndExtract(ctx, text)
	if err != nil {
		return toolError("classify_document", err), nil
	}
	return jsonResult(doc)
}

func (t *Tools) getEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, id, errResult := kindAndID(req)
	if errResult != nil {
		return errResult, nil
	}
	entity, err := t.entities.Get(ctx, kind, id)
	if err != nil {
		return toolError("get_entity", err), nil
	}
	return jsonResult(entity)
}

func (t *Tools) analyzeDiscrepancies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, id, errResult := kindAndID(req)
	if errResult != nil {
		return errResult, nil
	}
	rawPatch, ok := req.GetArguments()["patch"]
	if !ok {
		return mcp.NewToolResultError("patch is required"), nil
	}
	encoded, err := json.Marshal(rawPatch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode patch: %v", err)), nil
	}
	var patch domain.EntityPatch
	if err := json.Unmarshal(encoded, &patch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid patch: %v", err)), nil
	}

	discrepancies, err := t.pipeline.AnalyzeDiscrepancies(ctx, kind, id, patch)
	if err != nil {
		return toolError("analyze_discrepancies", err), nil
	}
	return jsonResult(map[string]any{"discrepancies": discrepancies})
}

func (t *Tools) parseResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := t.resumes.ParseText(ctx, text)
	if err != nil {
		return toolError("parse_resume", err), nil
	}
	return jsonResult(doc)
}

func kindAndID(req mcp.CallToolRequest) (domain.EntityKind, string, *mcp.CallToolResult) {
	rawKind, err := req.RequireString("kind")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	kind, ok := domain.ParseEntityKind(rawKind)
	if !ok {
		return "", "", mcp.NewToolResultError(fmt.Sprintf("unknown entity kind %q", rawKind))
	}
	id, err := req.RequireString("id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return kind, id, nil
}

// toolError reports failures as tool results so the client model sees them.
func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp_tool_failed", "tool", tool, "error", err.Error())
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
