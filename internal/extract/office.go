package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// maxSheetRows is the number of worksheet rows read from a spreadsheet.
const maxSheetRows = 50

// extractDOCX reads the paragraphs of word/document.xml.
func extractDOCX(path string, max int) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = zr.Close() }()

	rc, err := openZipEntry(&zr.Reader, "word/document.xml")
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	out := &limitedBuilder{max: max}
	dec := xml.NewDecoder(rc)
	inText := false
	for !out.full() {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.add("\t")
			case "br":
				out.add("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.add("\n")
			}
		case xml.CharData:
			if inText {
				out.add(string(t))
			}
		}
	}
	return out.String(), nil
}

type sharedStrings struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type worksheet struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

type workbook struct {
	Views []struct {
		ActiveTab int `xml:"activeTab,attr"`
	} `xml:"bookViews>workbookView"`
	Sheets []struct {
		Name  string `xml:"name,attr"`
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// defaultSheet is read when the workbook does not say which sheet is active.
const defaultSheet = "xl/worksheets/sheet1.xml"

// activeSheet resolves the archive path of the workbook's active sheet.
func activeSheet(r *zip.Reader) string {
	var wb workbook
	if err := decodeZipEntry(r, "xl/workbook.xml", &wb); err != nil || len(wb.Sheets) == 0 {
		return defaultSheet
	}
	tab := 0
	if len(wb.Views) > 0 {
		tab = wb.Views[0].ActiveTab
	}
	if tab < 0 || tab >= len(wb.Sheets) {
		tab = 0
	}

	var rels relationships
	if err := decodeZipEntry(r, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return defaultSheet
	}
	for _, rel := range rels.Items {
		if rel.ID != wb.Sheets[tab].RelID {
			continue
		}
		if strings.HasPrefix(rel.Target, "/") {
			return strings.TrimPrefix(rel.Target, "/")
		}
		return path.Join("xl", rel.Target)
	}
	return defaultSheet
}

// extractXLSX reads the active worksheet, joining non-empty cells of a row
// with ", ".
func extractXLSX(path string, max int) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = zr.Close() }()

	var shared []string
	if rc, err := openZipEntry(&zr.Reader, "xl/sharedStrings.xml"); err == nil {
		var ss sharedStrings
		err = xml.NewDecoder(rc).Decode(&ss)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("parse sharedStrings.xml: %w", err)
		}
		for _, si := range ss.Items {
			text := si.Text
			for _, r := range si.Runs {
				text += r.Text
			}
			shared = append(shared, text)
		}
	}

	var ws worksheet
	if err := decodeZipEntry(&zr.Reader, activeSheet(&zr.Reader), &ws); err != nil {
		return "", err
	}

	out := &limitedBuilder{max: max}
	for i, row := range ws.Rows {
		if i >= maxSheetRows || out.full() {
			break
		}
		var cells []string
		for _, c := range row.Cells {
			var v string
			switch c.Type {
			case "s":
				idx, err := strconv.Atoi(strings.TrimSpace(c.Value))
				if err == nil && idx >= 0 && idx < len(shared) {
					v = shared[idx]
				}
			case "inlineStr":
				v = c.Inline.Text
			default:
				v = c.Value
			}
			if v = strings.TrimSpace(v); v != "" {
				cells = append(cells, v)
			}
		}
		if len(cells) > 0 {
			out.add(strings.Join(cells, ", "))
			out.add("\n")
		}
	}
	return out.String(), nil
}

func decodeZipEntry(r *zip.Reader, name string, v any) error {
	rc, err := openZipEntry(r, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path.Base(name), err)
	}
	return nil
}

func openZipEntry(r *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range r.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
