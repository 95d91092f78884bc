package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/shapedetect/internal/pdf"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

func newPDFCommand() *cobra.Command {
	pdfCmd := &cobra.Command{
		Use:   "pdf [files...]",
		Short: "Detect shapes in images embedded in PDF files",
		Long: `Extract the images embedded in each page of one or more PDF files and detect
shapes in every one of them.

Examples:
  shapedetect pdf document.pdf
  shapedetect pdf document.pdf --pages 1-3,5 --format json
  shapedetect pdf secret.pdf --password s3cret`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPDF,
	}

	f := pdfCmd.Flags()
	f.StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	f.StringP("output", "o", "", "output file (default is stdout)")
	f.String("pages", "", "page range, for example 1-3,5 (default is all pages)")
	f.String("password", "", "user password for encrypted PDFs")
	f.String("owner-password", "", "owner password for encrypted PDFs")
	addDetectionFlags(pdfCmd)
	return pdfCmd
}

func runPDF(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	flags := cmd.Flags()
	minConfidence, _ := flags.GetFloat64("min-confidence")
	if err := validateMinConfidence(minConfidence); err != nil {
		return err
	}
	sortShapes, _ := flags.GetBool("sort")
	userPassword, _ := flags.GetString("password")
	ownerPassword, _ := flags.GetString("owner-password")

	var creds *pdf.Credentials
	if userPassword != "" || ownerPassword != "" {
		creds = &pdf.Credentials{UserPassword: userPassword, OwnerPassword: ownerPassword}
	}

	pl, err := pipeline.NewBuilder().WithDetectorConfig(cfg.ToDetectorConfig()).Build()
	if err != nil {
		return fmt.Errorf("failed to build detection pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("Error closing pipeline", "error", err)
		}
	}()

	docs := make([]*pipeline.PDFResult, 0, len(args))
	for _, file := range args {
		res, err := pl.ProcessPDFContext(cmd.Context(), file, cfg.PDF.Pages, creds)
		if err != nil {
			if pdf.IsPasswordError(err) {
				return fmt.Errorf("failed to process %s: %w (use --password for encrypted PDFs)", file, err)
			}
			return fmt.Errorf("failed to process %s: %w", file, err)
		}
		for _, img := range res.Images() {
			filterShapes(img, minConfidence, sortShapes)
		}
		for i := range res.Pages {
			res.Pages[i].ShapeCount = 0
			for _, img := range res.Pages[i].Images {
				res.Pages[i].ShapeCount += len(img.Shapes)
			}
		}
		slog.Info("PDF processed", "file", file, "pages", len(res.Pages), "totalMs", res.TotalMs)
		docs = append(docs, res)
	}

	output, err := formatPDFResults(cfg.Output.Format, cfg.Output.ConfidencePrecision, docs)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	return writeResults(cmd.OutOrStdout(), cmd.ErrOrStderr(), output, cfg.Output.File)
}

// formatPDFResults keeps the document structure for json and yaml and
// flattens to one row or block per image for csv and text.
func formatPDFResults(format string, precision int, docs []*pipeline.PDFResult) (string, error) {
	var doc interface{} = docs
	if len(docs) == 1 {
		doc = docs[0]
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "yaml", "yml":
		data, err := yaml.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case "csv", "text", "":
		var images []*pipeline.ImageResult
		for _, d := range docs {
			images = append(images, d.Images()...)
		}
		if strings.EqualFold(format, "csv") {
			return pipeline.ToCSV(precision, images...)
		}
		var sb strings.Builder
		for _, d := range docs {
			fmt.Fprintf(&sb, "%s: %d page(s) processed in %.2fms\n", d.Filename, len(d.Pages), d.TotalMs)
		}
		text, err := pipeline.ToPlainText(precision, images...)
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		return sb.String(), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
