package fetch

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentText returns the visible text of an HTML document with runs of
// whitespace collapsed to a single space. Script and style contents are dropped.
func DocumentText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}
