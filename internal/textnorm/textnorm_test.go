package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: "  \t\n  ",
			want:  "",
		},
		{
			name:  "plain text untouched",
			input: "환불 안내",
			want:  "환불 안내",
		},
		{
			name:  "markup tags removed",
			input: "<b>환불</b> 안내",
			want:  "환불 안내",
		},
		{
			name:  "nested tags with attributes",
			input: `<div class="guide"><p style="color:red">영업일 기준</p></div>`,
			want:  "영업일 기준",
		},
		{
			name:  "non-breaking space decoded",
			input: "배송&nbsp;지연&nbsp;안내",
			want:  "배송 지연 안내",
		},
		{
			name:  "named entities decoded",
			input: "3&lt;5 &amp; &quot;멤버십&quot;",
			want:  `3<5 & "멤버십"`,
		},
		{
			name:  "entity escaped markup removed",
			input: "&lt;b&gt;공지&lt;/b&gt; 내용",
			want:  "공지 내용",
		},
		{
			name:  "double escaped markup removed",
			input: "&amp;lt;b&amp;gt;공지&amp;lt;/b&amp;gt; 내용",
			want:  "공지 내용",
		},
		{
			name:  "whitespace runs collapsed",
			input: "주문   취소\n\n처리  기준",
			want:  "주문 취소 처리 기준",
		},
		{
			name:  "leading and trailing whitespace trimmed",
			input: "  <br/> 반품 접수 <br/>  ",
			want:  "반품 접수",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.input))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"환불 안내",
		"<b>환불</b> 안내",
		"배송&nbsp;지연",
		"&lt;p&gt;상품 누락&lt;/p&gt;",
		"&amp;lt;b&amp;gt;공지&amp;lt;/b&amp;gt; 내용",
		"&amp;amp;lt;i&amp;amp;gt;삼중 이스케이프&amp;amp;lt;/i&amp;amp;gt;",
		"  multiple   spaces \t here ",
		`<a href="https://example.com">link</a> text`,
	}

	for _, input := range inputs {
		once := Clean(input)
		assert.Equal(t, once, Clean(once), "input %q", input)
	}
}
