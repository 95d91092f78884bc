package batch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

type fileEntry struct {
	File   string                `json:"file" yaml:"file"`
	Result *pipeline.ImageResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string                `json:"error,omitempty" yaml:"error,omitempty"`
}

type batchDocument struct {
	Images  []fileEntry      `json:"images" yaml:"images"`
	Summary pipeline.Summary `json:"summary" yaml:"summary"`
}

func newBatchDocument(r *Result) batchDocument {
	doc := batchDocument{
		Images:  make([]fileEntry, len(r.Files)),
		Summary: r.Summary(),
	}
	for i, f := range r.Files {
		doc.Images[i] = fileEntry{File: f.Path, Result: f.Result}
		if f.Error != nil {
			doc.Images[i].Error = f.Error.Error()
		}
	}
	return doc
}

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(r *Result, format string, precision int) (string, error) {
	switch strings.ToLower(format) {
	case "json":
		return formatJSON(r)
	case "yaml", "yml":
		return formatYAML(r)
	case "csv":
		return pipeline.ToCSV(precision, r.Results()...)
	case "text", "":
		return formatText(r, precision)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatJSON(r *Result) (string, error) {
	bts, err := json.MarshalIndent(newBatchDocument(r), "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatYAML(r *Result) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(newBatchDocument(r)); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func formatText(r *Result, precision int) (string, error) {
	var output strings.Builder
	for i, f := range r.Files {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", f.Path))
		if f.Error != nil {
			output.WriteString(fmt.Sprintf("error: %v\n", f.Error))
			continue
		}
		text, err := pipeline.ToPlainText(precision, f.Result)
		if err != nil {
			return "", err
		}
		output.WriteString(text)
	}
	return output.String(), nil
}

// ResolveOutputFile places OutputFile under OutputDir. With an output
// directory but no file name the results go to shapes.<format>.
func (c *Config) ResolveOutputFile() string {
	if c.OutputDir == "" || filepath.IsAbs(c.OutputFile) {
		return c.OutputFile
	}
	name := c.OutputFile
	if name == "" {
		ext := strings.ToLower(c.Format)
		switch ext {
		case "", "text":
			ext = "txt"
		case "yml":
			ext = "yaml"
		}
		name = "shapes." + ext
	}
	return filepath.Join(c.OutputDir, name)
}
