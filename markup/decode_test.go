package markup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/medline/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSet = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2019//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_190101.dtd">
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation Status="MEDLINE" Owner="NLM">
      <PMID Version="1">1001</PMID>
      <DateCompleted><Year>2019</Year><Month>01</Month><Day>02</Day></DateCompleted>
      <Article PubModel="Print">
        <ArticleTitle>Effects of &amp; on <i>in vitro</i> growth.</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Growth was measured.</AbstractText>
          <AbstractText Label="RESULTS">It grew.</AbstractText>
        </Abstract>
      </Article>
      <CommentsCorrectionsList>
        <CommentsCorrections RefType="Cites"><PMID Version="1">9999</PMID></CommentsCorrections>
      </CommentsCorrectionsList>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">1002</PMID>
      <Article>
        <ArticleTitle>Title only&nbsp;article</ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">1003</PMID>
      <Article></Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>
`

func TestDecode_PubmedSample(t *testing.T) {
	a := NewAssembler(config.DefaultTags())

	err := Decode(context.Background(), strings.NewReader(sampleSet), a)
	require.NoError(t, err)

	records := a.Sorted()
	require.Len(t, records, 2)

	assert.Equal(t, "1001", *records[0].Permalink)
	assert.Equal(t, "Effects of & on in vitro growth.", *records[0].Title)
	assert.Equal(t, "Growth was measured. It grew.", *records[0].Content)

	assert.Equal(t, "1002", *records[1].Permalink)
	assert.Equal(t, "Title only\u00a0article", *records[1].Content)

	stats := a.Stats()
	assert.Equal(t, 3, stats.Seen)
	assert.Equal(t, 1, stats.Invalid())
}

func TestDecode_Latin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<PubmedArticle><PMID>5</PMID><AbstractText>caf\xe9</AbstractText></PubmedArticle>"
	a := NewAssembler(config.DefaultTags())

	require.NoError(t, Decode(context.Background(), strings.NewReader(doc), a))

	records := a.Sorted()
	require.Len(t, records, 1)
	assert.Equal(t, "café", *records[0].Content)
}

func TestDecode_MalformedDocument(t *testing.T) {
	doc := "<PubmedArticleSet><PubmedArticle><PMID>1</PMID><AbstractText>ok</AbstractText></PubmedArticle>" +
		"<PubmedArticle><PMID>2</PMID><AbstractText>cut <"
	a := NewAssembler(config.DefaultTags())

	err := Decode(context.Background(), strings.NewReader(doc), a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.Equal(t, 1, a.Len(), "units completed before the error are kept")
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Decode(ctx, strings.NewReader(sampleSet), NewAssembler(config.DefaultTags()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode_NilHandler(t *testing.T) {
	err := Decode(context.Background(), strings.NewReader(sampleSet), nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

// failingHandler latches an error after a number of unit closes.
type failingHandler struct {
	*Assembler
	after int
	err   error
}

func (f *failingHandler) EndElement(name string) {
	f.Assembler.EndElement(name)
	if name == "PubmedArticle" {
		f.after--
		if f.after == 0 {
			f.err = errors.New("disk full")
		}
	}
}

func (f *failingHandler) Err() error { return f.err }

func TestDecode_StopsOnHandlerError(t *testing.T) {
	h := &failingHandler{Assembler: NewAssembler(config.DefaultTags()), after: 1}

	err := Decode(context.Background(), strings.NewReader(sampleSet), h)
	require.Error(t, err)
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, h.Stats().Seen, "no events after the latched error")
}
