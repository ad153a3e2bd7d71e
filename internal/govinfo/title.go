// Package govinfo serves bill titles looked up from the GovInfo BILLSTATUS
// bulk data, in the shape the Atomic UX front-end's /api/govinfo expects.
package govinfo

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	officialTitleAsIntroduced = "Official Title as Introduced"
	shortTitle                = "Short Title"
)

type billStatus struct {
	XMLName xml.Name `xml:"billStatus"`
	Bill    struct {
		Title  string      `xml:"title"`
		Titles []titleItem `xml:"titles>item"`
	} `xml:"bill"`
}

type titleItem struct {
	TitleType string `xml:"titleType"`
	Title     string `xml:"title"`
}

// ParseTitle extracts the display title from a BILLSTATUS document. The
// official title as introduced wins, otherwise the first short title. When
// the chosen item is blank the bill's own title element is used. It returns
// "" when none is present.
func ParseTitle(data []byte) (string, error) {
	var doc billStatus
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse bill status: %w", err)
	}
	return selectTitle(doc.Bill.Titles, doc.Bill.Title), nil
}

func selectTitle(items []titleItem, fallback string) string {
	var title string
	if it, ok := findTitle(items, func(t string) bool { return t == officialTitleAsIntroduced }); ok {
		// an official title item decides, even when its title is empty
		title = it.Title
	} else if it, ok := findTitle(items, func(t string) bool { return strings.Contains(t, shortTitle) }); ok {
		title = it.Title
	}
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return strings.TrimSpace(fallback)
}

func findTitle(items []titleItem, match func(titleType string) bool) (titleItem, bool) {
	for _, it := range items {
		if match(it.TitleType) {
			return it, true
		}
	}
	return titleItem{}, false
}

// DisplayTitle renders the derived title the front-end shows for a bill,
// e.g. "HR123 - To amend title 5".
func DisplayTitle(billType, number, title string) string {
	return fmt.Sprintf("%s%s - %s", strings.ToUpper(strings.TrimSpace(billType)), strings.TrimSpace(number), title)
}
