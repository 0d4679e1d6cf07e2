package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type detailField int

const (
	detailNone detailField = iota
	detailLocation
	detailTime
	detailSponsor
)

var detailLabels = map[string]detailField{
	"location":      detailLocation,
	"where":         detailLocation,
	"venue":         detailLocation,
	"place":         detailLocation,
	"room":          detailLocation,
	"time":          detailTime,
	"when":          detailTime,
	"date":          detailTime,
	"date & time":   detailTime,
	"date and time": detailTime,
	"date/time":     detailTime,
	"sponsor":       detailSponsor,
	"sponsors":      detailSponsor,
	"sponsored by":  detailSponsor,
	"hosted by":     detailSponsor,
	"host":          detailSponsor,
	"organizer":     detailSponsor,
	"presented by":  detailSponsor,
}

var labelLine = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z &/]{1,20}?)\s*:\s*(\S.*)$`)

func classifyLabel(label string) detailField {
	label = strings.ToLower(strings.Join(strings.Fields(strings.TrimRight(label, ": ")), " "))
	return detailLabels[label]
}

// findDetails scans key/value markup: table rows, definition lists and
// "Label: value" lines. The first value found for a field wins.
func findDetails(doc *goquery.Document) Details {
	var d Details
	set := func(label, value string) {
		value = strings.Join(strings.Fields(value), " ")
		if value == "" {
			return
		}
		value = truncate(value, maxDetailLength)
		switch classifyLabel(label) {
		case detailLocation:
			if d.Location == "" {
				d.Location = value
			}
		case detailTime:
			if d.Time == "" {
				d.Time = value
			}
		case detailSponsor:
			if d.Sponsor == "" {
				d.Sponsor = value
			}
		}
	}

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("th, td")
		if cells.Length() < 2 {
			return
		}
		set(cells.Eq(0).Text(), cells.Eq(1).Text())
	})

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		set(dt.Text(), dd.Text())
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	if inner, err := body.Html(); err == nil {
		for _, m := range labelLine.FindAllStringSubmatch(toText(inner), -1) {
			set(m[1], m[2])
		}
	}

	return d
}
