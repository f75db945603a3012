package sink

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/textnorm"
	"github.com/sells-group/lead-harvest/pkg/notion"
)

// notionColumns maps table columns to lead database properties. Columns
// not listed here are not sent.
var notionColumns = map[string]string{
	ColName:     notion.PropName,
	ColPhone:    notion.PropPhone,
	ColWebsite:  notion.PropURL,
	ColLocation: notion.PropLocation,
	ColRating:   notion.PropRating,
	ColReviews:  notion.PropReviews,
	ColScore:    notion.PropScore,
}

// Notion queues accepted leads as pages in a Notion database. Rejected
// destinations are ignored. Leads whose name and phone already exist in the
// database are skipped.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a Notion sink writing to database dbID.
func NewNotion(client notion.Client, dbID string) *Notion {
	return &Notion{client: client, dbID: dbID}
}

// Write implements Sink.
func (s *Notion) Write(ctx context.Context, table Table, dest Destination) error {
	if dest.Kind != KindAccepted {
		return nil
	}
	log := zap.L().With(zap.String("sink", "notion"), zap.String("destination", dest.Name))

	existing, err := notion.QueryLeads(ctx, s.client, s.dbID)
	if err != nil {
		return eris.Wrap(err, "sink: notion load existing leads")
	}
	seen := make(map[string]struct{}, len(existing))
	for _, ref := range existing {
		seen[leadKey(ref.Name, ref.Phone)] = struct{}{}
	}

	created, skipped := 0, 0
	for _, rec := range table.Records() {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "sink: notion cancelled")
		}
		key := leadKey(rec[ColName], rec[ColPhone])
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}

		fields := make(map[string]string, len(notionColumns))
		for col, prop := range notionColumns {
			if v, ok := rec[col]; ok {
				fields[prop] = v
			}
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(s.dbID),
			},
			Properties: notion.LeadProperties(fields),
		}
		if _, err := s.client.CreatePage(ctx, req); err != nil {
			return eris.Wrapf(err, "sink: notion create page for %q", rec[ColName])
		}
		seen[key] = struct{}{}
		created++
	}

	log.Info("queued leads in notion", zap.Int("created", created), zap.Int("skipped", skipped))
	return nil
}

// leadKey matches a lead by the same normalized name and phone that form a
// run's identity key.
func leadKey(name, phone string) string {
	return textnorm.Name(name) + "|" + textnorm.Phone(phone)
}
