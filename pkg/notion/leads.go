package notion

import (
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
)

// Property names of the lead database.
const (
	PropName     = "Name"
	PropPhone    = "Phone"
	PropURL      = "URL"
	PropLocation = "Location"
	PropRating   = "Rating"
	PropReviews  = "Reviews"
	PropScore    = "Score"
	PropStatus   = "Status"

	// StatusQueued marks a lead waiting for outreach.
	StatusQueued = "Queued"
)

// LeadRef identifies a lead page by its name and phone.
type LeadRef struct {
	PageID string
	Name   string
	Phone  string
}

// LeadProperties converts one lead to page properties. Numeric fields that
// do not parse are stored as rich text. Status is always Queued.
func LeadProperties(fields map[string]string) notionapi.Properties {
	props := notionapi.Properties{
		PropStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: StatusQueued},
		},
	}
	for k, v := range fields {
		v = strings.TrimSpace(v)
		switch k {
		case PropName:
			props[k] = notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: richText(v),
			}
		case PropPhone:
			if v != "" {
				props[k] = notionapi.PhoneNumberProperty{
					Type:        notionapi.PropertyTypePhoneNumber,
					PhoneNumber: v,
				}
			}
		case PropURL:
			if v != "" {
				props[k] = notionapi.URLProperty{
					Type: notionapi.PropertyTypeURL,
					URL:  normalizeURL(v),
				}
			}
		case PropRating, PropReviews, PropScore:
			if v == "" {
				continue
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				props[k] = notionapi.NumberProperty{
					Type:   notionapi.PropertyTypeNumber,
					Number: n,
				}
				continue
			}
			props[k] = notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(v)}
		default:
			if v == "" {
				continue
			}
			props[k] = notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(v)}
		}
	}
	return props
}

// LeadFromPage reads the name and phone of a lead page.
func LeadFromPage(page notionapi.Page) LeadRef {
	ref := LeadRef{PageID: string(page.ID)}

	if prop, ok := page.Properties[PropName]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			for _, rt := range tp.Title {
				ref.Name += rt.PlainText
			}
		}
	}
	if prop, ok := page.Properties[PropPhone]; ok {
		if pp, ok := prop.(*notionapi.PhoneNumberProperty); ok {
			ref.Phone = pp.PhoneNumber
		}
	}

	ref.Name = strings.TrimSpace(ref.Name)
	ref.Phone = strings.TrimSpace(ref.Phone)
	return ref
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

// normalizeURL ensures a website has an https:// scheme prefix.
func normalizeURL(site string) string {
	if !strings.Contains(site, "://") {
		return "https://" + site
	}
	return site
}
