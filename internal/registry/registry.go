// Package registry loads cause-of-action templates from external sources.
// The legal team maintains the catalogue as a Notion database, one row per
// element; rows are grouped into templates by theory.
package registry

import (
	"context"
	"sort"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/casefold/matterflow/internal/claims"
	"github.com/casefold/matterflow/pkg/notion"
)

// elementRow is one parsed row of the Notion catalogue database.
type elementRow struct {
	Theory        string
	ElementID     string
	ElementName   string
	QuestionID    string
	QuestionText  string
	Keywords      []string
	Jurisdictions []string
	Order         int
}

// LoadCauseTemplates queries the Notion catalogue database for active rows
// and assembles them into a validated template catalogue.
func LoadCauseTemplates(ctx context.Context, client notion.Client, dbID string) (*claims.Catalog, error) {
	pages, err := notion.QueryActiveRows(ctx, client, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load cause templates")
	}

	// A malformed row is a fatal configuration error, not a skip: dropping an
	// element silently shrinks its template's denominator and inflates every
	// cause confidence computed from it.
	var rows []elementRow
	for _, p := range pages {
		row, err := parseElementPage(p)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: malformed element page %s", string(p.ID))
		}
		rows = append(rows, row)
	}

	catalog := assembleCatalog(rows)
	if err := claims.ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func parseElementPage(p notionapi.Page) (elementRow, error) {
	row := elementRow{}

	if prop, ok := p.Properties["ElementName"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			row.ElementName = plainText(tp.Title)
		}
	}
	if prop, ok := p.Properties["Theory"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			row.Theory = sp.Select.Name
		}
	}
	if prop, ok := p.Properties["ElementID"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			row.ElementID = plainText(rtp.RichText)
		}
	}
	if prop, ok := p.Properties["QuestionText"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			row.QuestionText = plainText(rtp.RichText)
		}
	}
	if prop, ok := p.Properties["Keywords"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				row.Keywords = append(row.Keywords, opt.Name)
			}
		}
	}
	if prop, ok := p.Properties["Jurisdictions"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				row.Jurisdictions = append(row.Jurisdictions, opt.Name)
			}
		}
	}
	if prop, ok := p.Properties["Order"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			row.Order = int(np.Number)
		}
	}

	row.QuestionID = row.ElementID + "-q"

	if row.Theory == "" {
		return row, eris.New("missing Theory property")
	}
	if row.ElementID == "" || row.ElementName == "" {
		return row, eris.New("missing ElementID or ElementName property")
	}
	if len(row.Keywords) == 0 {
		return row, eris.New("missing Keywords property")
	}

	return row, nil
}

// assembleCatalog groups element rows into templates, ordered by theory and
// the per-element Order column.
func assembleCatalog(rows []elementRow) *claims.Catalog {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Theory != rows[j].Theory {
			return rows[i].Theory < rows[j].Theory
		}
		return rows[i].Order < rows[j].Order
	})

	catalog := &claims.Catalog{}
	byTheory := make(map[string]int)
	for _, row := range rows {
		idx, ok := byTheory[row.Theory]
		if !ok {
			catalog.Templates = append(catalog.Templates, claims.Template{
				Theory:        row.Theory,
				Jurisdictions: row.Jurisdictions,
			})
			idx = len(catalog.Templates) - 1
			byTheory[row.Theory] = idx
		}
		catalog.Templates[idx].Elements = append(catalog.Templates[idx].Elements, claims.TemplateElement{
			ID:   row.ElementID,
			Name: row.ElementName,
			Questions: []claims.TemplateQuestion{
				{
					ID:       row.QuestionID,
					Text:     row.QuestionText,
					Keywords: row.Keywords,
				},
			},
		})
	}
	return catalog
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var s string
	for _, rt := range rts {
		s += rt.PlainText
	}
	return s
}
