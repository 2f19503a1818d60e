package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

const defaultChunkSize = 2000

// DocumentReadArgs are the LLM-facing parameters for document_read.
type DocumentReadArgs struct {
	DocumentID string `json:"document_id" jsonschema:"required,description=Identifier of the document to read"`
	ChunkIndex int    `json:"chunk_index,omitempty" jsonschema:"description=Which chunk to return,default=0"`
	MaxLength  int    `json:"max_length,omitempty" jsonschema:"description=Maximum characters per chunk,default=2000"`
}

// DocumentStore resolves a document id to a local path, format dispatch is
// done on that path's extension.
type DocumentStore interface {
	Open(ctx context.Context, documentID string) (path string, err error)
}

type DocumentRead struct {
	store DocumentStore
}

func NewDocumentRead(store DocumentStore) *DocumentRead {
	return &DocumentRead{store: store}
}

func (t *DocumentRead) Name() string          { return "document_read" }
func (t *DocumentRead) Description() string   { return "Read the content of a document by id, optionally chunked." }
func (t *DocumentRead) ArgsType() any          { return &DocumentReadArgs{} }
func (t *DocumentRead) RequiredArgs() []string { return []string{"document_id"} }

func (t *DocumentRead) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	documentID, _ := args["document_id"].(string)
	if documentID == "" {
		return types.ToolResult{Success: false, Error: "document_id is required"}, nil
	}
	chunkIndex := 0
	if v, ok := args["chunk_index"].(int); ok {
		chunkIndex = v
	} else if v, ok := args["chunk_index"].(float64); ok {
		chunkIndex = int(v)
	}
	maxLength := defaultChunkSize
	if v, ok := args["max_length"].(int); ok && v > 0 {
		maxLength = v
	} else if v, ok := args["max_length"].(float64); ok && v > 0 {
		maxLength = int(v)
	}

	path, err := t.store.Open(ctx, documentID)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("document not found: %s", err)}, nil
	}

	content, err := extractText(path)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("reading document: %s", err)}, nil
	}

	chunks := chunkText(content, maxLength)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	if chunkIndex < 0 || chunkIndex >= len(chunks) {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("chunk_index %d out of range (total_chunks=%d)", chunkIndex, len(chunks))}, nil
	}

	return types.ToolResult{
		Success: true,
		Output:  chunks[chunkIndex],
		Metadata: map[string]any{
			"sources":      []string{documentID},
			"title":        filepath.Base(path),
			"total_chunks": len(chunks),
			"chunk_index":  chunkIndex,
		},
	}, nil
}

func extractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDocx(path)
	case ".xlsx":
		return extractXlsx(path)
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	totalPages := r.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

func extractDocx(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", err)
	}
	defer r.Close()
	return r.Editable().GetContent(), nil
}

func extractXlsx(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		buf.WriteString("# " + sheet + "\n")
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteString("\n")
		}
	}
	return buf.String(), nil
}

func chunkText(content string, size int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	var chunks []string
	runes := []rune(content)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
