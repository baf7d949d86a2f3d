package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const drawingMLNamespace = "http://schemas.openxmlformats.org/drawingml/2006/main"

// maxSlideXMLBytes bounds a single decompressed slide part.
const maxSlideXMLBytes = 16 << 20

var slidePattern = regexp.MustCompile(`^ppt/slides/slide[0-9]+\.xml$`)

// pptxSlides returns the joined text runs of each slide in archive order.
func pptxSlides(ctx context.Context, data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pptx archive: %w", err)
	}

	var slides []string
	for _, f := range zr.File {
		if !slidePattern.MatchString(f.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := slideText(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		slides = append(slides, text)
	}
	if len(slides) == 0 {
		return nil, errors.New("pptx archive contains no slides")
	}
	return slides, nil
}

// slideText concatenates every <a:t> run with single spaces.
func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxSlideXMLBytes))
	var (
		runs   []string
		inRun  bool
		buffer strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if isTextRun(t.Name) {
				inRun = true
				buffer.Reset()
			}
		case xml.CharData:
			if inRun {
				buffer.Write(t)
			}
		case xml.EndElement:
			if inRun && isTextRun(t.Name) {
				inRun = false
				runs = append(runs, buffer.String())
			}
		}
	}
	return strings.Join(runs, " "), nil
}

func isTextRun(n xml.Name) bool {
	return n.Local == "t" && n.Space == drawingMLNamespace
}
