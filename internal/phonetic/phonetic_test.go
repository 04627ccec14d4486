package phonetic

import "testing"

func TestPinyin(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"你好", "nǐ hǎo"},
		{"中国", "zhōng guó"},
		{"hello", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Pinyin(tc.text); got != tc.want {
			t.Errorf("Pinyin(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestPinyinSkipsNonHan(t *testing.T) {
	if got := Pinyin("你 ok 好"); got != "nǐ hǎo" {
		t.Fatalf("Pinyin mixed = %q", got)
	}
}
