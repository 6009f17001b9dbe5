// SPDX-License-Identifier: GPL-3.0-or-later
package gmailconnection

import (
	"context"
	"fmt"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"

	"github.com/sirupsen/logrus"
	gmailv1 "google.golang.org/api/gmail/v1"
)

const user = "me"

// GmailConnection adapts *gmail.Service to the narrow MailClient
// surface the core depends on. Transport failures are wrapped in
// *domain.RemoteAPIError so callers can distinguish them from local
// recoverable ones.
type GmailConnection struct {
	svc *gmailv1.Service
	l   *logrus.Logger
}

func NewGmailConnection(svc *gmailv1.Service) *GmailConnection {
	return &GmailConnection{
		svc: svc,
		l:   log.Logger(log.LOG_GMAIL),
	}
}

func (g *GmailConnection) ListItems(ctx context.Context, query string, pageToken string, pageSize int64) (*domain.ListPage, error) {
	call := g.svc.Users.Messages.List(user).MaxResults(pageSize)
	if query != "" {
		call = call.Q(query)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, &domain.RemoteAPIError{Op: "list", Err: err}
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}

	g.l.WithFields(logrus.Fields{"ids": len(ids), "more": res.NextPageToken != ""}).Debug("Listed page")
	return &domain.ListPage{
		Ids:           ids,
		NextPageToken: res.NextPageToken,
	}, nil
}

func (g *GmailConnection) GetItem(ctx context.Context, id string) (*domain.RemoteItem, error) {
	// Full format so the MIME part tree is present for attachment
	// detection; the metadata format omits it.
	msg, err := g.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("could not get item %s: %w", id, err)
	}

	headers := map[string]string{}
	var parts []domain.Part
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
		parts = toParts(msg.Payload.Parts)
	}

	return &domain.RemoteItem{
		Id:       msg.Id,
		ThreadId: msg.ThreadId,
		Headers:  headers,
		LabelIds: msg.LabelIds,
		Size:     msg.SizeEstimate,
		Snippet:  msg.Snippet,
		Parts:    parts,
	}, nil
}

func (g *GmailConnection) BatchModify(ctx context.Context, ids []string, addLabels []string, removeLabels []string) error {
	req := &gmailv1.BatchModifyMessagesRequest{
		Ids:            ids,
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}

	err := g.svc.Users.Messages.BatchModify(user, req).Context(ctx).Do()
	if err != nil {
		return &domain.RemoteAPIError{Op: "batchModify", Err: err}
	}

	g.l.WithFields(logrus.Fields{"ids": len(ids), "add": addLabels, "remove": removeLabels}).Debug("Modified batch")
	return nil
}

func toParts(parts []*gmailv1.MessagePart) []domain.Part {
	if len(parts) == 0 {
		return nil
	}
	out := make([]domain.Part, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		out = append(out, domain.Part{
			Filename: p.Filename,
			Parts:    toParts(p.Parts),
		})
	}
	return out
}
