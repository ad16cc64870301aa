package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockNotionClient implements notion.Client for testing.
type mockNotionClient struct {
	mock.Mock
}

func (m *mockNotionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func title(s string) *notionapi.TitleProperty {
	return &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: s}}}
}

func richText(s string) *notionapi.RichTextProperty {
	return &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: s}}}
}

func selectProp(s string) *notionapi.SelectProperty {
	return &notionapi.SelectProperty{Select: notionapi.Option{Name: s}}
}

func multiSelect(names ...string) *notionapi.MultiSelectProperty {
	p := &notionapi.MultiSelectProperty{}
	for _, n := range names {
		p.MultiSelect = append(p.MultiSelect, notionapi.Option{Name: n})
	}
	return p
}

func number(n float64) *notionapi.NumberProperty {
	return &notionapi.NumberProperty{Number: n}
}

func elementPage(id, theory, elemID, elemName string, order float64, keywords ...string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			"ElementName":  title(elemName),
			"Theory":       selectProp(theory),
			"ElementID":    richText(elemID),
			"QuestionText": richText("Does the record support " + elemName + "?"),
			"Keywords":     multiSelect(keywords...),
			"Order":        number(order),
		},
	}
}

func TestLoadCauseTemplates_GroupsRowsByTheory(t *testing.T) {
	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, "db-123", mock.Anything).Return(
		&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				elementPage("p2", "conversion", "damages", "Damages", 2, "loss", "deprived"),
				elementPage("p1", "conversion", "dominion", "Wrongful dominion", 1, "took", "withheld"),
			},
			HasMore: false,
		}, nil)

	catalog, err := LoadCauseTemplates(context.Background(), client, "db-123")
	require.NoError(t, err)
	require.Len(t, catalog.Templates, 1)

	tpl := catalog.Templates[0]
	assert.Equal(t, "conversion", tpl.Theory)
	require.Len(t, tpl.Elements, 2)
	// Order column controls element ordering.
	assert.Equal(t, "dominion", tpl.Elements[0].ID)
	assert.Equal(t, "damages", tpl.Elements[1].ID)
	client.AssertExpectations(t)
}

func TestLoadCauseTemplates_MalformedRowIsFatal(t *testing.T) {
	missingTheory := notionapi.Page{
		ID: "bad",
		Properties: notionapi.Properties{
			"ElementName": title("Orphan element"),
			"ElementID":   richText("orphan"),
			"Keywords":    multiSelect("x"),
		},
	}

	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, "db-123", mock.Anything).Return(
		&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				missingTheory,
				elementPage("p1", "conversion", "dominion", "Wrongful dominion", 1, "took"),
			},
			HasMore: false,
		}, nil)

	_, err := LoadCauseTemplates(context.Background(), client, "db-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "Theory")
}

func TestLoadCauseTemplates_EmptyDatabaseIsInvalid(t *testing.T) {
	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, "db-123", mock.Anything).Return(
		&notionapi.DatabaseQueryResponse{HasMore: false}, nil)

	_, err := LoadCauseTemplates(context.Background(), client, "db-123")
	assert.Error(t, err)
}

func TestLoadCatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	src := `templates:
  - theory: conversion
    elements:
      - id: dominion
        name: Wrongful dominion
        questions:
          - id: q1
            keywords: [took, withheld]
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	catalog, err := LoadCatalogFromFile(path)
	require.NoError(t, err)
	require.Len(t, catalog.Templates, 1)
	assert.Equal(t, "conversion", catalog.Templates[0].Theory)
}

func TestLoadCatalogFromFile_Missing(t *testing.T) {
	_, err := LoadCatalogFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
