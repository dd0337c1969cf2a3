package htmlutil

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "empty", input: "", expect: ""},
		{name: "plain", input: "hello", expect: "hello"},
		{name: "paragraphs", input: "<p>第一段</p><p>  第二   段 </p>", expect: "第一段\n第二 段"},
		{name: "breaks", input: "a<br>b<br/><br/>c", expect: "a\nb\nc"},
		{name: "entities", input: "1 &lt; 2 &amp;&nbsp;3", expect: "1 < 2 & 3"},
		{name: "script dropped", input: "<div>x<script>var a = 1</script></div>", expect: "x"},
		{name: "only tags", input: "<p></p><div> </div>", expect: ""},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expect, PlainText(test.input))
		})
	}
}

func TestInlineScripts(t *testing.T) {
	doc := `<html><head>
		<script src="/static/jquery.js"></script>
		<script>var a = 1;</script>
	</head><body>
		<script type="text/javascript">var b = 2;</script>
	</body></html>`

	scripts, err := InlineScripts(context.Background(), doc)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"var a = 1;", "var b = 2;"}, scripts); diff != "" {
		t.Fatal(diff)
	}
}
