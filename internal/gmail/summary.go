package gmail

import (
	gmailapi "google.golang.org/api/gmail/v1"
)

// Summary is the triage view of a single message: enough metadata for a
// human to decide what to do with it, without the message body.
type Summary struct {
	ID             string           `json:"id"`
	ThreadID       string           `json:"thread_id"`
	Subject        string           `json:"subject"`
	Sender         string           `json:"sender"`
	Snippet        string           `json:"snippet"`
	Date           string           `json:"date"`
	HasAttachment  bool             `json:"has_attachment"`
	AttachmentInfo []AttachmentInfo `json:"attachment_info"`
	CategoryPred   string           `json:"category_pred"`
	PriorityScore  int              `json:"priority_score"`
}

// AttachmentInfo describes one real attachment on a message. Inline
// parts without a filename are not listed.
type AttachmentInfo struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

func buildSummary(msg *gmailapi.Message) Summary {
	summary := Summary{
		ID:             msg.Id,
		ThreadID:       msg.ThreadId,
		Subject:        "(No Subject)",
		Snippet:        msg.Snippet,
		AttachmentInfo: []AttachmentInfo{},
	}
	if msg.Payload == nil {
		return summary
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			if header.Value != "" {
				summary.Subject = header.Value
			}
		case "From":
			summary.Sender = header.Value
		case "Date":
			summary.Date = header.Value
		}
	}

	walkParts(msg.Payload, func(part *gmailapi.MessagePart) {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			summary.HasAttachment = true
			summary.AttachmentInfo = append(summary.AttachmentInfo, AttachmentInfo{
				Filename: part.Filename,
				MimeType: part.MimeType,
			})
		}
	})
	return summary
}

// walkParts visits a message part and all of its nested children.
func walkParts(part *gmailapi.MessagePart, visit func(*gmailapi.MessagePart)) {
	if part == nil {
		return
	}
	visit(part)
	for _, child := range part.Parts {
		walkParts(child, visit)
	}
}
