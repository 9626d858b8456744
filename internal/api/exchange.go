package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrWong99/aether/internal/snapshot"
)

// Section names a partial export that can be moved between campaigns.
type Section string

const (
	SectionTemplates Section = "templates"
	SectionLog       Section = "log"
	SectionChats     Section = "chats"
)

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	return s == SectionTemplates || s == SectionLog || s == SectionChats
}

// Export downloads the whole campaign: snapshot, cursor and event history.
func (c *Client) Export(ctx context.Context) (*snapshot.File, error) {
	var f snapshot.File
	if err := c.do(ctx, "Export", http.MethodGet, "/api/host/export", nil, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Import replaces the campaign on the server with f. Connected clients
// receive no events for an import; they must reload the snapshot.
func (c *Client) Import(ctx context.Context, f *snapshot.File) error {
	if f == nil {
		return invalid("import file is required")
	}
	if f.LastSeq < 0 {
		return invalid("last_seq must not be negative, got %d", f.LastSeq)
	}
	return c.do(ctx, "Import", http.MethodPost, "/api/host/import", nil, f, nil)
}

// ExportSection downloads one section as raw JSON.
func (c *Client) ExportSection(ctx context.Context, s Section) (json.RawMessage, error) {
	if !s.Valid() {
		return nil, invalid("unknown export section %q", s)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "ExportSection", http.MethodGet, "/api/export/"+string(s), nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ImportSection uploads one section previously produced by ExportSection.
func (c *Client) ImportSection(ctx context.Context, s Section, data json.RawMessage) error {
	if !s.Valid() {
		return invalid("unknown import section %q", s)
	}
	if !json.Valid(data) {
		return invalid("%s import is not valid JSON", s)
	}
	return c.do(ctx, "ImportSection", http.MethodPost, "/api/import/"+string(s), nil, data, nil)
}
