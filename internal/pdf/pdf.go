// Package pdf pulls embedded raster images out of PDF documents so they can be
// run through shape detection page by page.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/shapedetect/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImages holds the images embedded on one PDF page, in extraction order.
type PageImages struct {
	Page   int
	Images []image.Image
}

// ExtractImages extracts all images from a PDF file. Pages without images are
// omitted; the result is sorted by page number.
func ExtractImages(filename string, pageRange string) ([]PageImages, error) {
	return ExtractImagesWithCredentials(filename, pageRange, nil)
}

// ExtractImagesWithCredentials is ExtractImages for documents that may be
// password protected. A nil creds behaves like ExtractImages.
func ExtractImagesWithCredentials(filename, pageRange string, creds *Credentials) ([]PageImages, error) {
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "shapedetect-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageStrings []string
	if len(pageNumbers) > 0 {
		pageStrings = make([]string, len(pageNumbers))
		for i, pageNum := range pageNumbers {
			pageStrings[i] = strconv.Itoa(pageNum)
		}
	}

	var conf *model.Configuration
	if creds != nil {
		conf = creds.configuration()
	}

	if err := api.ExtractImagesFile(filename, tempDir, pageStrings, conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	pages, err := collectExtractedImages(tempDir, stem)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return pages, nil
}

// PageCount returns the number of pages in a PDF file.
func PageCount(filename string) (int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to count PDF pages: %w", err)
	}
	return n, nil
}

// collectExtractedImages reads every decodable image in dir and groups it by
// the page number encoded in its file name.
func collectExtractedImages(dir, stem string) ([]PageImages, error) {
	byPage := make(map[int][]image.Image)
	var names []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		names = append(names, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Walk order is lexical, which puts image 10 before image 2.
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(filepath.Base(names[i]), filepath.Base(names[j]))
	})

	for _, path := range names {
		pageNum, err := parsePageFromFilename(filepath.Base(path), stem)
		if err != nil {
			continue
		}
		img, _, err := utils.LoadImage(path)
		if err != nil {
			continue
		}
		byPage[pageNum] = append(byPage[pageNum], img)
	}

	out := make([]PageImages, 0, len(byPage))
	for page, imgs := range byPage {
		out = append(out, PageImages{Page: page, Images: imgs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, nil
}

// parsePageFromFilename extracts the page number from an extracted image
// name. pdfcpu writes "<stem>_<page>_<id>.<ext>"; the "page_<page>_..." form
// is accepted as well.
func parsePageFromFilename(filename, stem string) (int, error) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	switch {
	case stem != "" && strings.HasPrefix(name, stem+"_"):
		name = strings.TrimPrefix(name, stem+"_")
	case strings.HasPrefix(name, "page_"):
		name = strings.TrimPrefix(name, "page_")
	default:
		return 0, errors.New("not a page file")
	}

	token, _, _ := strings.Cut(name, "_")
	pageNum, err := strconv.Atoi(token)
	if err != nil || pageNum < 1 {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// naturalLess orders names so that embedded numbers compare numerically.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := leadingDigits(a), leadingDigits(b)
		if da != "" && db != "" {
			na, _ := strconv.Atoi(da)
			nb, _ := strconv.Atoi(db)
			if na != nb {
				return na < nb
			}
			a, b = a[len(da):], b[len(db):]
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// parsePageRange parses a page range string like "1-5" or "1,3,5".
// An empty string selects all pages and returns nil.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for part := range strings.SplitSeq(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses either a single page ("3") or an inclusive range ("1-5").
func parseRangeToken(part string) ([]int, error) {
	if startStr, endStr, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", startStr)
		}
		end, err := strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", endStr)
		}
		if start < 1 {
			return nil, fmt.Errorf("page numbers start at 1, got %d", start)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	if page < 1 {
		return nil, fmt.Errorf("page numbers start at 1, got %d", page)
	}
	return []int{page}, nil
}
