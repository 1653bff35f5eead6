package exporter

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/dataset"
	"github.com/chatvault/chatvault/internal/identity"
)

// ProcessedAttachment pairs a web-ready image record with the source
// message row it came from, so it can be linked to the stable message
// id after the merge assigns one.
type ProcessedAttachment struct {
	Image    dataset.Image
	SourceID int64
}

// processAttachments copies image attachments out of the OS-managed
// store, converts HEIC originals to a web-ready format, and builds
// image records. A file that cannot be read or converted is skipped
// and counted; it never aborts the run.
func (e *Exporter) processAttachments(ctx context.Context, summary *Summary) ([]ProcessedAttachment, error) {
	rows, err := e.source.ListAttachments(ctx, e.cfg.AttachmentLimit)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	attachmentsDir := e.cfg.AttachmentsPath()
	webDir := e.cfg.WebImagesPath()
	for _, dir := range []string{attachmentsDir, webDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create attachment dir: %w", err)
		}
	}

	processed := make([]ProcessedAttachment, 0, len(rows))
	taken := map[string]struct{}{}
	for _, row := range rows {
		src := expandHome(row.Path)
		if _, err := os.Stat(src); err != nil {
			summary.ImagesSkipped++
			e.logger.Debug("attachment file missing", zap.String("path", src))
			continue
		}

		name := uniqueName(taken, attachmentBaseName(row.TransferName, src))
		copied := filepath.Join(attachmentsDir, name)
		if err := copyFile(src, copied); err != nil {
			summary.ImagesSkipped++
			e.logger.Warn("copy attachment failed", zap.String("path", src), zap.Error(err))
			continue
		}

		webPath, err := e.converter.Convert(ctx, copied, webDir)
		if err != nil {
			summary.ImagesSkipped++
			e.logger.Warn("convert attachment failed", zap.String("path", copied), zap.Error(err))
			continue
		}

		contactName := e.resolver.Resolve(ctx, row.SenderKey)
		if !identity.IsResolvedName(contactName) && row.ChatDisplayName != "" {
			contactName = row.ChatDisplayName
		}

		mimeType := row.MimeType
		if mimeType == "" || isHEIC(src) {
			mimeType = "image/jpeg"
		}

		processed = append(processed, ProcessedAttachment{
			Image: dataset.Image{
				URL:         path.Join(e.cfg.WebImagesDir, filepath.Base(webPath)),
				Filename:    filepath.Base(webPath),
				Date:        row.Date,
				ContactName: contactName,
				IsFromMe:    row.IsFromMe,
				MimeType:    mimeType,
			},
			SourceID: row.MessageRowID,
		})
		summary.ImagesProcessed++
	}

	e.logger.Info("processed attachments",
		zap.Int("processed", summary.ImagesProcessed),
		zap.Int("skipped", summary.ImagesSkipped))
	return processed, nil
}

// attachImages replaces the dataset's image list and links each image
// to its message's stable id via the source row id. Images whose
// message fell outside the extraction window keep a zero message id.
func attachImages(ds *dataset.Dataset, processed []ProcessedAttachment) {
	if len(processed) == 0 {
		return
	}

	bySource := make(map[int64]int64, len(ds.Messages))
	for _, m := range ds.Messages {
		bySource[m.SourceID] = m.ID
	}

	images := make([]dataset.Image, 0, len(processed))
	for _, p := range processed {
		img := p.Image
		img.MessageID = bySource[p.SourceID]
		images = append(images, img)
	}
	ds.Images = images
}

// attachmentBaseName prefers the original transfer name over the
// opaque on-disk filename.
func attachmentBaseName(transferName, src string) string {
	if transferName != "" {
		return filepath.Base(transferName)
	}
	return filepath.Base(src)
}

// uniqueName disambiguates repeated attachment filenames with a
// numeric suffix before the extension.
func uniqueName(taken map[string]struct{}, name string) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, exists := taken[candidate]; !exists {
			taken[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
