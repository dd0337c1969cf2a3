package portal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	tokenA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	tokenB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	tokenC = "0123456789ABCDEF0123456789abcdef"
)

func TestValidToken(t *testing.T) {
	require.True(t, ValidToken(tokenA))
	require.True(t, ValidToken(tokenC))
	require.False(t, ValidToken(tokenA[:31]))
	require.False(t, ValidToken(tokenA+"A"))
	require.False(t, ValidToken("GGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG"))
}

func TestMatchers(t *testing.T) {
	cases := []struct {
		name    string
		matcher Matcher
		script  string
		expect  []string
	}{
		{
			name:    "header set",
			matcher: HeaderSet,
			script:  `xhr.setRequestHeader( "sessionId" , '` + tokenA + `' );`,
			expect:  []string{tokenA},
		},
		{
			name:    "colon assign",
			matcher: ColonAssign,
			script:  `var opts = {sessionId : "` + tokenB + `"};`,
			expect:  []string{tokenB},
		},
		{
			name:    "equals assign is case insensitive",
			matcher: EqualsAssign,
			script:  `SESSIONID='` + tokenC + `'`,
			expect:  []string{tokenC},
		},
		{
			name:    "quoted pair",
			matcher: QuotedPair,
			script:  `headers.set("sessionId", "` + tokenA + `")`,
			expect:  []string{tokenA},
		},
		{
			name:    "key adjacent",
			matcher: KeyAdjacent,
			script:  `sessionId -> ` + tokenB,
			expect:  []string{tokenB},
		},
		{
			name:    "too short",
			matcher: ColonAssign,
			script:  `sessionId: "` + tokenA[:20] + `"`,
			expect:  []string{},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.expect, test.matcher(test.script)); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestCollectCandidatesOrder(t *testing.T) {
	scripts := []string{
		`var sessionId = "` + tokenA + `";`,
		`var unrelated = "` + tokenC + `";`,
		`$.ajaxSetup({beforeSend: function(x){ x.setRequestHeader("sessionId", "` + tokenB + `") }});
		 var again = {sessionId: "` + tokenA + `"};`,
	}

	candidates := collectCandidates(scripts, Union(DocumentMatchers...))
	if diff := cmp.Diff([]string{tokenA, tokenB}, candidates); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, tokenB, LastMatch(candidates))
	require.Equal(t, tokenA, FirstMatch(candidates))
	require.Equal(t, "", LastMatch(nil))
}

func TestFirst(t *testing.T) {
	first := First(HeaderSet, KeyAdjacent)
	require.Equal(t, tokenB, first(`sessionId=`+tokenB))
	require.Equal(t, "", first(`nothing here`))
}
