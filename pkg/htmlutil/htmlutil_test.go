package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "  Stranger Things  ", expected: "Stranger Things"},
		{input: "Stranger\n\t  Things\u0000 1080p", expected: "Stranger Things 1080p"},
		{input: "", expected: ""},
	}

	for _, row := range table {
		require.Equal(t, row.expected, CleanText(row.input))
	}
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><a>Stranger<br>Things</a> <span> S04 </span></div>`,
	))
	require.Nil(t, err)

	require.Equal(t, "Stranger Things S04", SelectionText(doc.Find("div")))
	require.Equal(t, "", SelectionText(doc.Find("table")))
}
