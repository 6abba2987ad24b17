package format

import "testing"

func TestBuilderRendersLabeledLines(t *testing.T) {
	var b Builder
	b.Img("https://img.example.com/poster.jpg")
	b.Line("片　　名", "肖申克的救赎")
	b.Line("主　　演", "蒂姆·罗宾斯", "摩根·弗里曼")
	b.Line("集　　数", "")
	b.Block("简　　介", "第一行\n第二行")

	want := "[img]https://img.example.com/poster.jpg[/img]\n\n" +
		"◎片　　名　肖申克的救赎\n" +
		"◎主　　演　蒂姆·罗宾斯 / 摩根·弗里曼\n" +
		"◎简　　介\n" +
		"　　第一行\n" +
		"　　第二行"
	if got := b.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestEmptyValuesProduceNothing(t *testing.T) {
	var b Builder
	b.Img("")
	b.Line("标　　签", "", "  ")
	b.Block("简　　介", "   ")
	if got := b.String(); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		values []string
		want   string
	}{
		{[]string{"a", "b"}, "a / b"},
		{[]string{"a", "", " b "}, "a / b"},
		{[]string{""}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Join(tt.values); got != tt.want {
			t.Errorf("Join(%v) = %q, want %q", tt.values, got, tt.want)
		}
	}
}
