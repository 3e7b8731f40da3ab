package edgar

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExhibitRef is one exhibit row of a filing index page.
type ExhibitRef struct {
	ExhibitType string // "EX-2.1", "EX-10.1", ...
	Description string
	Filename    string
	URL         string
	IsPDF       bool
}

var exhibitTypeRE = regexp.MustCompile(`EX-(\d+\.?\d*)`)

// ParseIndex extracts the exhibit rows from a filing index page. Rows
// that do not look like exhibits (cover pages, graphics, the complete
// submission file) are dropped.
func (c *Client) ParseIndex(indexHTML []byte, cik, accessionNumber string) ([]ExhibitRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(indexHTML))
	if err != nil {
		return nil, fmt.Errorf("edgar: parse index page: %w", err)
	}

	var exhibits []ExhibitRef
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		var texts []string
		cells.Each(func(_ int, cell *goquery.Selection) {
			texts = append(texts, strings.TrimSpace(cell.Text()))
		})

		description := texts[1]
		upper := strings.ToUpper(strings.Join(texts, " "))
		if !strings.Contains(upper, "EX-") && !strings.Contains(upper, "EXHIBIT") {
			return
		}

		exhibitType := ""
		if m := exhibitTypeRE.FindString(upper); m != "" {
			exhibitType = m
		}

		filename := ""
		if href, ok := row.Find("a").First().Attr("href"); ok {
			parts := strings.Split(href, "/")
			filename = parts[len(parts)-1]
		} else {
			// Fall back to the cell that looks like a filename.
			for _, t := range texts {
				if strings.Contains(t, ".htm") || strings.Contains(t, ".pdf") || strings.Contains(t, ".txt") {
					filename = t
					break
				}
			}
		}
		if filename == "" {
			return
		}

		exhibits = append(exhibits, ExhibitRef{
			ExhibitType: exhibitType,
			Description: description,
			Filename:    filename,
			URL:         c.DocumentURL(cik, accessionNumber, filename),
			IsPDF:       strings.HasSuffix(strings.ToLower(filename), ".pdf"),
		})
	})
	return exhibits, nil
}
