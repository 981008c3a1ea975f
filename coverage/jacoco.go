// Package coverage converts JaCoCo XML reports into per-class coverage CSV.
package coverage

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
)

const (
	DefaultReportPath = "core/build/reports/jacoco/test/jacocoTestReport.xml"
	DefaultOutputPath = "core/build/reports/jacoco/coverage_report.csv"
	DefaultPrefix     = "generated/"
)

// Header is the first record of the coverage file.
var Header = []string{"Class", "LineCoverage", "BranchCoverage"}

// packageList collects <package> elements in document order, descending into
// <group> elements as aggregate reports nest them.
type packageList []pkg

func (l *packageList) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "package":
				var p pkg
				if err := d.DecodeElement(&p, &t); err != nil {
					return err
				}
				*l = append(*l, p)
			case "group":
				if err := l.UnmarshalXML(d, t); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

type pkg struct {
	Name    string  `xml:"name,attr"`
	Classes []class `xml:"class"`
}

type class struct {
	Name     string    `xml:"name,attr"`
	Counters []counter `xml:"counter"`
}

type counter struct {
	Type    string `xml:"type,attr"`
	Missed  int    `xml:"missed,attr"`
	Covered int    `xml:"covered,attr"`
}

// ClassCoverage holds the percentages of one class.
type ClassCoverage struct {
	Class  string
	Line   float64
	Branch float64
}

// Parse reads a JaCoCo report and returns the classes of packages whose name
// starts with prefix, in document order. The report's DTD is not resolved.
func Parse(r io.Reader, prefix string) ([]ClassCoverage, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	var packages packageList
	if err := dec.Decode(&packages); err != nil {
		return nil, fmt.Errorf("decode jacoco report: %w", err)
	}
	var out []ClassCoverage
	for _, p := range packages {
		if !strings.HasPrefix(p.Name, prefix) {
			continue
		}
		for _, c := range p.Classes {
			cc := ClassCoverage{Class: c.Name}
			for _, ctr := range c.Counters {
				switch ctr.Type {
				case "LINE":
					cc.Line = Percentage(ctr.Covered, ctr.Missed)
				case "BRANCH":
					cc.Branch = Percentage(ctr.Covered, ctr.Missed)
				}
			}
			out = append(out, cc)
		}
	}
	return out, nil
}

// Percentage returns covered as a share of covered+missed, or 0 when both are 0.
func Percentage(covered, missed int) float64 {
	total := covered + missed
	if total == 0 {
		return 0
	}
	return 100.0 * float64(covered) / float64(total)
}

// EncodeCSV writes the coverage rows with two-decimal percentages.
func EncodeCSV(w io.Writer, rows []ClassCoverage) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Class,
			formatPercent(row.Line),
			formatPercent(row.Branch),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", row.Class, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatPercent renders v with two decimals, rounding the shortest decimal
// form of v half away from zero: 0.125 becomes "0.13".
func formatPercent(v float64) string {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(v, 'f', -1, 64))
	if !ok {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return r.FloatString(2)
}

// Convert parses a report and renders the CSV in one step.
func Convert(r io.Reader, prefix string) ([]byte, int, error) {
	rows, err := Parse(r, prefix)
	if err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, rows); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(rows), nil
}
