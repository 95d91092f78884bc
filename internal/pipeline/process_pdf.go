package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/shapedetect/internal/common"
	"github.com/MeKo-Tech/shapedetect/internal/pdf"
)

// ProcessPDF runs detection on every image embedded in a PDF.
func (p *Pipeline) ProcessPDF(filename string, pageRange string) (*PDFResult, error) {
	return p.ProcessPDFContext(context.Background(), filename, pageRange, nil)
}

// ProcessPDFContext processes a PDF page by page with cancellation support.
// pageRange selects pages ("1-3,5"); empty means all. creds may be nil for
// unencrypted documents.
func (p *Pipeline) ProcessPDFContext(ctx context.Context, filename, pageRange string, creds *pdf.Credentials) (*PDFResult, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}
	if p == nil || p.Detector == nil {
		return nil, errors.New("pipeline not initialized")
	}

	total := common.NewNamedTimer("pdf")

	source := filename
	if !creds.Empty() {
		decrypted, err := pdf.Decrypt(filename, creds)
		if err != nil {
			return nil, err
		}
		defer func() { _ = pdf.CleanupTempFile(decrypted) }()
		source = decrypted
	}

	extract := common.NewNamedTimer("pdf-extract")
	pageImages, err := pdf.ExtractImages(source, pageRange)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	extract.Stop()

	pages := make([]PDFPageResult, 0, len(pageImages))
	for _, pi := range pageImages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.processPDFPage(ctx, filename, pi.Page, pi.Images)
		if err != nil {
			return nil, fmt.Errorf("failed to process page %d: %w", pi.Page, err)
		}
		pages = append(pages, *page)
	}

	total.Stop()
	slog.Debug("Processed PDF",
		"file", filename,
		"pages", len(pages),
		"extraction", extract.Duration(),
		"total", total.Duration())

	return &PDFResult{
		Filename:     filename,
		TotalPages:   len(pages),
		Pages:        pages,
		ExtractionMs: extract.Milliseconds(),
		TotalMs:      total.Milliseconds(),
	}, nil
}

func (p *Pipeline) processPDFPage(ctx context.Context, filename string, pageNum int, images []image.Image) (*PDFPageResult, error) {
	page := &PDFPageResult{PageNumber: pageNum, Images: make([]*ImageResult, 0, len(images))}
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.ProcessImageContext(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		res.Source = filename
		res.Page = pageNum
		res.ImageIndex = i
		page.ShapeCount += len(res.Shapes)
		page.Images = append(page.Images, res)
	}
	return page, nil
}
