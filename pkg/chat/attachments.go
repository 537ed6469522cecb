package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

// maxConcurrentUploads bounds the per-turn upload fan-out.
const maxConcurrentUploads = 4

// maxInlineText caps how much of a text attachment is pasted into the prompt.
const maxInlineText = 16 * 1024

// Attachment is a file sent with a prompt.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

func (a Attachment) contentType() string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return http.DetectContentType(a.Data)
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.contentType(), "image/")
}

func (a Attachment) isText() bool {
	ct := a.contentType()
	return strings.HasPrefix(ct, "text/") || ct == "application/json"
}

// DataURI encodes the attachment for inline delivery to the model.
func (a Attachment) DataURI() string {
	return "data:" + a.contentType() + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// uploadAll stores every attachment concurrently and returns the URLs of the
// ones that succeeded, in input order. Failures are logged and skipped.
func uploadAll(ctx context.Context, files FileStorage, userID string, attachments []Attachment) ([]string, []error) {
	if files == nil || len(attachments) == 0 {
		return nil, nil
	}

	urls := make([]string, len(attachments))
	errs := make([]error, len(attachments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i, att := range attachments {
		i, att := i, att
		g.Go(func() error {
			name := path.Base(att.Name)
			if name == "." || name == "/" || name == "" {
				name = "attachment"
			}
			dest := fmt.Sprintf("%s/%s/%s", userID, uuid.NewString(), name)
			url, err := files.Upload(gctx, att.Data, dest)
			if err != nil {
				errs[i] = &UploadError{Name: att.Name, Err: err}
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(urls))
	var failed []error
	for i, url := range urls {
		if errs[i] != nil {
			logger.WarnCF("chat", "Attachment upload failed", map[string]any{
				"name":  attachments[i].Name,
				"error": errs[i].Error(),
			})
			failed = append(failed, errs[i])
			continue
		}
		out = append(out, url)
	}
	return out, failed
}

// userMessageParts splits attachments into image data URIs and text appended
// to the prompt.
func userMessageParts(prompt string, attachments []Attachment) (string, []string) {
	var images []string
	var b strings.Builder
	b.WriteString(prompt)
	for _, att := range attachments {
		switch {
		case att.IsImage():
			images = append(images, att.DataURI())
		case att.isText() && utf8.Valid(att.Data):
			body := att.Data
			if len(body) > maxInlineText {
				body = body[:maxInlineText]
			}
			fmt.Fprintf(&b, "\n\n[Attached file: %s]\n%s", att.Name, strings.ToValidUTF8(string(body), ""))
		default:
			fmt.Fprintf(&b, "\n\n[Attached file: %s (%s, %d bytes)]", att.Name, att.contentType(), len(att.Data))
		}
	}
	return b.String(), images
}
